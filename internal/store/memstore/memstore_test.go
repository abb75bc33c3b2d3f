package memstore

import (
	"testing"

	"github.com/fentz26/aiorg/internal/store"
	"github.com/fentz26/aiorg/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		return New()
	})
}
