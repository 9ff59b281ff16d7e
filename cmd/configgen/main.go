package main

import (
	"flag"

	"github.com/danmuck/diagipc/internal/config"
	"github.com/danmuck/diagipc/internal/observability"
	"github.com/rs/zerolog/log"
)

const defaultServerConfigPath = "cmd/diagserver/config.toml"

func main() {
	kind := flag.String("kind", "server", "config kind: server")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	observability.InitLogger("configgen")

	path, err := defaultPath(*kind)
	if err != nil {
		log.Fatal().Err(err).Msg("configgen")
	}

	if *validate {
		if *input != "" {
			path = *input
		}
		if _, err := config.LoadServerConfig(path); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("validate config")
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("validated config")
		return
	}

	if *output != "" {
		path = *output
	}
	if err := config.WriteTemplate(path, *kind, *force); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("write template")
	}
	log.Info().Str("kind", *kind).Str("path", path).Msg("wrote config template")
}

func defaultPath(kind string) (string, error) {
	switch kind {
	case "server", "diagserver":
		return defaultServerConfigPath, nil
	default:
		return "", &unknownKindError{kind: kind}
	}
}

type unknownKindError struct{ kind string }

func (e *unknownKindError) Error() string { return "unknown kind: " + e.kind }
