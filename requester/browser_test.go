package requester

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewBrowserTransportFailsWithoutBrowser(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "no-such-chrome")

	bt, err := NewBrowserTransport(bin, "ua", time.Second, quiet())

	assert.Error(t, err, "the browser is launched up front")
	assert.Nil(t, bt)
}
