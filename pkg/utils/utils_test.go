package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerID(t *testing.T) {
	assert.Equal(t, "node-a", ServerID("node-a"))

	a, b := ServerID(""), ServerID("")
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestCreateFolder(t *testing.T) {
	base := t.TempDir()
	nested := filepath.Join(base, "storages", "pages")
	require.NoError(t, CreateFolder(nested, ""))

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSamePath(t *testing.T) {
	assert.True(t, SamePath("storages/page.html", "./storages/../storages/page.html"))
	assert.False(t, SamePath("page.html", "out.html"))
}

func TestPanicIfNeeded(t *testing.T) {
	assert.NotPanics(t, func() { PanicIfNeeded(nil) })

	assert.PanicsWithValue(t, pkgError.ValidationError("bad"), func() {
		PanicIfNeeded(pkgError.ValidationError("bad"))
	})
	assert.PanicsWithValue(t, pkgError.InternalServerError("boom"), func() {
		PanicIfNeeded(errors.New("boom"))
	})
}
