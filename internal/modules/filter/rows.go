package filter

import (
	"log/slog"

	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/internal/logger"
)

// invalidRowPolicy applies the onInvalidRow strategy to row decoding errors.
type invalidRowPolicy struct {
	strategy errhandling.OnErrorStrategy
	dropped  int
}

// handle returns err when the strategy is fail. Otherwise it records the
// dropped row and returns nil so the caller skips it.
func (p *invalidRowPolicy) handle(err *errhandling.DataSourceError) error {
	switch p.strategy {
	case errhandling.OnErrorSkip:
		p.dropped++
		logger.Debug("skipping invalid row",
			slog.String("source", err.Source),
			slog.Int("row", err.Row),
			slog.String("column", err.Column),
			slog.String("error", err.Message))
		return nil
	case errhandling.OnErrorLog:
		p.dropped++
		logger.Warn("invalid row dropped",
			slog.String("source", err.Source),
			slog.Int("row", err.Row),
			slog.String("column", err.Column),
			slog.String("error", err.Message))
		return nil
	default:
		return err
	}
}

func rowError(source string, row int, column string, cause error) *errhandling.DataSourceError {
	return &errhandling.DataSourceError{
		Source:  source,
		Row:     row + 1,
		Column:  column,
		Message: "invalid value",
		Err:     cause,
	}
}
