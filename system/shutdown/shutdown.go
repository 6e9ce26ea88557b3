package shutdown

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/psu-controller/internal/env"
)

type Rail interface {
	PowerDown() error
}

var exit = os.Exit

// Shutdown drops the main power rail and exits. In safe mode the rail is left alone.
func Shutdown(rail Rail) {
	if !env.Cfg.SafeMode && rail != nil {
		if err := rail.PowerDown(); err != nil {
			log.Error().Err(err).Msg("Failed to drop main power rail")
			exit(1)
			return
		}
		log.Info().Msg("Main power rail deactivated")
	}
	exit(0)
}

func ShutdownWithError(rail Rail, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Shutdown(rail)
}
