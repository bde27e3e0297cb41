package memory

import (
	"errors"

	"github.com/hupe1980/agentroom/core"
)

func isNotFound(err error) bool { return errors.Is(err, core.ErrRecordNotFound) }
