package render

import (
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/resumail/resumail/web"
)

const stylesheetPath = "static/css/report.css"

// Stylesheet is the static style asset applied to every report.
type Stylesheet struct {
	Version string
	CSS     string
}

var loadStylesheet = sync.OnceValue(func() Stylesheet {
	data, err := web.Static.ReadFile(stylesheetPath)
	if err != nil {
		panic("render: missing embedded stylesheet: " + err.Error())
	}
	sum := blake2b.Sum256(data)
	return Stylesheet{Version: hex.EncodeToString(sum[:4]), CSS: string(data)}
})

// DefaultStylesheet returns the embedded report stylesheet. The value is the
// same for every report.
func DefaultStylesheet() Stylesheet {
	return loadStylesheet()
}
