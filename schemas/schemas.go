// Package schemas embeds the JSON Schema documents used by the validation
// package.
package schemas

import _ "embed"

// ArtifactSchemaJSON validates classifier and scaler artifacts.
//
//go:embed artifact.schema.json
var ArtifactSchemaJSON string

// FuseRequestSchemaJSON validates bodies posted to /api/fuse.
//
//go:embed fuse_request.schema.json
var FuseRequestSchemaJSON string
