package outcodes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSetIsOrdered(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)
	require.Greater(t, s.Len(), 0)

	all := s.All()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}

	o, ok := s.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "AB10", o.Code)
}

func TestParseSortsByID(t *testing.T) {
	s, err := Parse([]byte("outcodes:\n  - {id: 9, code: ZZ9}\n  - {id: 2, code: BB2}\n"))
	require.NoError(t, err)
	all := s.All()
	assert.Equal(t, 2, all[0].ID)
	assert.Equal(t, 9, all[1].ID)
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte("outcodes:\n  - {id: 1, code: A}\n  - {id: 1, code: B}\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("outcodes:\n  - {id: 0, code: A}\n"))
	assert.Error(t, err)
}

func TestAllReturnsCopy(t *testing.T) {
	s, err := Parse([]byte("outcodes:\n  - {id: 1, code: A}\n"))
	require.NoError(t, err)
	all := s.All()
	all[0].Code = "mutated"
	o, _ := s.Lookup(1)
	assert.Equal(t, "A", o.Code)
	assert.Equal(t, "A", s.All()[0].Code)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("outcodes:\n  - {id: 5, code: CF10}\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
