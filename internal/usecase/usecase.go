// Package usecase contains application business logic: the activity
// sampler, the classifier, the focus-session state machine and the
// daily aggregator.
package usecase

import (
	"errors"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
