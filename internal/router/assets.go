package router

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vk/modgate/internal/module"
)

const notFoundBody = "File Not Found."

// asset serves a file from the module's client directory. Missing files are
// answered with 200 and a plain-text body.
func (r *Router) asset(c echo.Context, h *module.Handle, rel string) error {
	if rel == "" || strings.HasSuffix(rel, "/") {
		rel += "index.html"
	}
	full, ok := resolveAsset(h.ClientDir(), rel)
	if !ok {
		return c.String(http.StatusOK, notFoundBody)
	}

	f, err := os.Open(full)
	if err != nil {
		return c.String(http.StatusOK, notFoundBody)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return c.String(http.StatusOK, notFoundBody)
	}

	http.ServeContent(c.Response(), c.Request(), info.Name(), info.ModTime(), f)
	return nil
}

// resolveAsset joins rel onto dir, refusing anything that escapes dir.
func resolveAsset(dir, rel string) (string, bool) {
	if dir == "" {
		return "", false
	}
	cleaned := path.Clean("/" + rel)
	if cleaned == "/" {
		return "", false
	}
	return filepath.Join(dir, filepath.FromSlash(cleaned)), true
}
