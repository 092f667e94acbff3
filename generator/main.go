package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/dynabind/dynabind/generator/generator"
)

var (
	configFile *string
	output     *string
	pkgName    *string
)

func init() {
	configFile = flag.String("config", "dynabind.toml", "the generation config to load")
	output = flag.String("output", "", "override the configured output file")
	pkgName = flag.String("package", "", "override the configured package name")
}

func Usage() {
	fmt.Fprintf(os.Stderr, "Usage of dynabind/generator:\n")
	fmt.Fprintf(os.Stderr, "  generator -config dynabind.toml [-output bindings_gen.go] [-package main]\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = Usage
	flag.Parse()

	var cfg generator.Config
	if _, err := toml.DecodeFile(*configFile, &cfg); err != nil {
		log.Fatal(err)
	}

	if *output != "" {
		cfg.Output = *output
	}
	if *pkgName != "" {
		cfg.Package = *pkgName
	}

	// Inputs are relative to the config file, so go:generate works from any
	// package directory.
	base := filepath.Dir(*configFile)
	for i, input := range cfg.Inputs {
		if !filepath.IsAbs(input) {
			cfg.Inputs[i] = filepath.Join(base, input)
		}
	}
	if cfg.Output != "" && !filepath.IsAbs(cfg.Output) {
		cfg.Output = filepath.Join(base, cfg.Output)
	}

	if err := generator.Generate(cfg); err != nil {
		log.Fatal(err)
	}
}
