package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/riskdesk/internal/common"
)

const branchExport = "\ufeffTransaction_ID, Customer ID ,transaction_amount,method_of_transaction,location_data,timestamp,label_for_fraud,merchant\n" +
	"T-1,C1,100.50,ATM,Mumbai,2024-03-01 09:00:00,0,Shop A\n" +
	",C1,250,UPI,Delhi,2024-03-01 10:00:00,1,\n" +
	"T-3,C2,abc,UPI,Delhi,,,\n" +
	",,,,,,,\n" +
	"T-4,,75,Card,Pune,,,\n"

func TestCSVParser_ParseFile(t *testing.T) {
	txs, err := NewCSVParser(Options{CustomerID: "C9"}).ParseFile(context.Background(), strings.NewReader(branchExport))
	require.NoError(t, err)
	require.Len(t, txs, 3, "the row with a bad amount is skipped")

	first := txs[0]
	assert.Equal(t, "T-1", first.ID)
	assert.Equal(t, "C1", first.CustomerID)
	assert.Equal(t, "100.5", first.Amount.String())
	assert.Equal(t, "ATM", first.Method)
	assert.Equal(t, "Mumbai", first.Location)
	require.NotNil(t, first.LabelForFraud)
	assert.Equal(t, 0, *first.LabelForFraud)
	assert.Equal(t, "Shop A", first.Extra["merchant"])

	second := txs[1]
	assert.Len(t, second.ID, 24, "hash id for a timestamped row without one")
	assert.True(t, second.IsFraudLabelled())
	assert.NotContains(t, second.Extra, "merchant")

	assert.Equal(t, "T-4", txs[2].ID)
	assert.Equal(t, "C9", txs[2].CustomerID, "default customer fills the gap")
	assert.Nil(t, txs[2].Timestamp)

	again, err := NewCSVParser(Options{CustomerID: "C9"}).ParseFile(context.Background(), strings.NewReader(branchExport))
	require.NoError(t, err)
	assert.Equal(t, second.ID, again[1].ID, "hash ids are stable across imports")
}

func TestCSVParser_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    int
		wantErr bool
	}{
		{name: "empty file", data: "", wantErr: true},
		{name: "header only", data: "transaction_id,transaction_amount\n", want: 0},
		{name: "every row invalid", data: "transaction_id,transaction_amount\nT-1,lots\nT-2,more\n", wantErr: true},
		{name: "too many cells", data: "transaction_id,transaction_amount\nT-1,5,extra\nT-2,6\n", want: 1},
		{name: "unterminated quote", data: "transaction_id,transaction_amount\n\"T-1,5\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs, err := NewCSVParser(Options{}).ParseFile(context.Background(), strings.NewReader(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrParse)
				return
			}
			require.NoError(t, err)
			assert.Len(t, txs, tt.want)
		})
	}
}

func TestCSVParser_RandomIDWithoutTimestamp(t *testing.T) {
	data := "customer_id,transaction_amount\nC1,10\nC1,10\n"
	txs, err := NewCSVParser(Options{}).ParseFile(context.Background(), strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.NotEmpty(t, txs[0].ID)
	assert.NotEqual(t, txs[0].ID, txs[1].ID)
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Parser
		wantErr bool
	}{
		{path: "export.csv", want: &CSVParser{}},
		{path: "/tmp/Statement.QFX", want: &OFXParser{}},
		{path: "jan.ofx", want: &OFXParser{}},
		{path: "data.xlsx", wantErr: true},
		{path: "noext", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p, err := ForPath(tt.path, Options{})
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}
}
