package postgres

import (
	"os"
	"testing"

	"github.com/purldb/purldb/test/integration"
)

func TestMain(m *testing.M) {
	var c int
	defer func() { os.Exit(c) }()
	defer integration.DBSetup()()
	c = m.Run()
}
