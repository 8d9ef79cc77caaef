// Command artifact-check loads a classification artifact and prints its
// metadata, failing when the schema would be rejected at service startup.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/saludstack/anemia-triage/internal/engine"
	"github.com/saludstack/anemia-triage/internal/models"
)

type summary struct {
	Version  string         `yaml:"version"`
	Classes  []models.Class `yaml:"classes"`
	Features []string       `yaml:"features"`
}

func main() {
	var path string
	flag.StringVar(&path, "artifact", "configs/model/pipeline.json", "Path to the model artifact")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	classifier, err := engine.LoadClassifier(path, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "artifact rejected: %v\n", err)
		os.Exit(1)
	}

	out, err := yaml.Marshal(summary{
		Version:  classifier.Version(),
		Classes:  classifier.Classes(),
		Features: classifier.Features(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "render summary: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(out)
}
