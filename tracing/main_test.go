package tracing

import (
	"testing"

	"github.com/AlexanderYastrebov/noleak"
)

func TestMain(m *testing.M) {
	noleak.CheckMain(m)
}
