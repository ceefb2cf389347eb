package local

import (
	"log/slog"
)

type Config struct {
	// Logger to use
	Logger *slog.Logger
	// Prefix of the container names
	Prefix string
	// Image used for labels without a specific image
	Image string
	// Images maps labels to the image their containers run
	Images map[string]string
	// Command run by every container, defaults to the image command
	Command []string
}
