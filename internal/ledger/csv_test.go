package ledger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techmehedi/Autopay-Agent/pkg/types"
)

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []types.AuditEntry{
		{Timestamp: "2025-06-01T00:00:00Z", Status: types.StatusApproved, Amount: 0.5, Purpose: `say "hi"`, Recipient: "0xabc", TxID: "tx1"},
		{Timestamp: "2025-06-01T01:00:00Z", Status: types.StatusRejected, Amount: 12.3456, Purpose: "a,b", Reason: "too much", Error: "e"},
	})
	require.NoError(t, err)

	want := "timestamp,status,amount,purpose,recipient,txId,reason,error\n" +
		`"2025-06-01T00:00:00Z","approved","0.50","say ""hi""","0xabc","tx1","",""` + "\n" +
		`"2025-06-01T01:00:00Z","rejected","12.35","a,b","","","too much","e"`
	assert.Equal(t, want, buf.String())
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, CSVHeader, buf.String())
}
