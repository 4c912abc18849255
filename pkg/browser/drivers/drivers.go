// Package drivers registers the cdp and remote backends with package
// browser. Import it for its side effects:
//
//	import _ "github.com/xkilldash9x/scalpel-ui/pkg/browser/drivers"
package drivers

import (
	_ "github.com/xkilldash9x/scalpel-ui/internal/browser/cdp"
	_ "github.com/xkilldash9x/scalpel-ui/internal/browser/remote"
)
