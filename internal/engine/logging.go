package engine

import (
	"bfbot/internal/logger"

	"github.com/sirupsen/logrus"
)

func componentEntry(log *logger.Logger, component, pair string) *logrus.Entry {
	if pair == "" {
		return log.WithComponent(component)
	}
	return log.WithSymbol(pair).WithField("component", component)
}
