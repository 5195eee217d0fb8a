// Package appfs embeds the SQL migrations and the email templates shipped with the binaries.
package appfs

import "embed"

// Underscored layouts are listed explicitly: directory patterns skip them.
//go:embed migrations templates templates/email/_base.txt templates/email/_base.gohtml
var FS embed.FS
