package env

import (
	"github.com/thatsimonsguy/psu-controller/internal/config"
)

var Cfg *config.Config
