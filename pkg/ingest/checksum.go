package ingest

import (
	"hash/crc64"

	"github.com/acervo-ai/acervo/pkg/models"
)

// checksumTable uses the ECMA polynomial. The checksum of the normalized
// Markdown must be stable across runs and deployments; duplicate detection
// depends on it.
var checksumTable = crc64.MakeTable(crc64.ECMA)

// Checksum computes the content checksum of a normalized Markdown string.
func Checksum(markdown string) models.Checksum {
	return models.Checksum(crc64.Checksum([]byte(markdown), checksumTable))
}
