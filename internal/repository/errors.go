package repository

import (
	"errors"
	"fmt"

	"mentorbook/internal/domain"

	"gorm.io/gorm"
)

// translate maps driver-level failures onto the domain taxonomy. Anything it
// does not recognise is wrapped with op for the logs.
func translate(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.NotFound(resource)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.Conflict("duplicate " + resource)
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
