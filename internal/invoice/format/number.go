package format

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

const InvoiceNumberPrefix = "INV-"

// NewInvoiceNumber returns an opaque invoice number: the prefix plus
// an 8-character uppercase hexadecimal token. Collision probability is
// accepted as negligible; the unique constraint is the backstop.
func NewInvoiceNumber() string {
	id := uuid.New()
	return InvoiceNumberPrefix + strings.ToUpper(hex.EncodeToString(id[:4]))
}
