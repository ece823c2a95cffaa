package rod

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/go-rod/rod/lib/cdp"
)

var goneMessages = []string{
	"No target with given id",
	"Target closed",
	"Session with given id not found",
	"No session with given id",
}

// wrap tags CDP failures that mean the page no longer exists with
// engine.ErrTargetGone.
func wrap(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) {
		for _, msg := range goneMessages {
			if strings.Contains(cdpErr.Message, msg) {
				return fmt.Errorf("%w: %s", engine.ErrTargetGone, cdpErr.Message)
			}
		}
	}
	return err
}
