package embedding

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/gofiber/template/html/v2"
)

//go:embed views/*.html
var viewFiles embed.FS

// NewViews returns the template engine for the embed page.
func NewViews() *html.Engine {
	sub, err := fs.Sub(viewFiles, "views")
	if err != nil {
		panic(err)
	}
	return html.NewFileSystem(http.FS(sub), ".html")
}
