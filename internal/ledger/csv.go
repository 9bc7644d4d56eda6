package ledger

import (
	"bufio"
	"io"
	"strings"

	"github.com/techmehedi/Autopay-Agent/internal/money"
	"github.com/techmehedi/Autopay-Agent/pkg/types"
)

// CSVHeader is the first line of every audit export.
const CSVHeader = "timestamp,status,amount,purpose,recipient,txId,reason,error"

// WriteCSV exports entries with every field quoted and inner quotes doubled.
// encoding/csv only quotes when needed, so rows are assembled by hand.
func WriteCSV(w io.Writer, entries []types.AuditEntry) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(CSVHeader); err != nil {
		return err
	}
	for _, e := range entries {
		fields := []string{
			e.Timestamp,
			string(e.Status),
			money.Format(e.Amount),
			e.Purpose,
			e.Recipient,
			e.TxID,
			e.Reason,
			e.Error,
		}
		bw.WriteByte('\n')
		for i, f := range fields {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.WriteByte('"')
			bw.WriteString(strings.ReplaceAll(f, `"`, `""`))
			bw.WriteByte('"')
		}
	}
	return bw.Flush()
}
