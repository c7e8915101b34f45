package estratto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairTransactionsCleanArray(t *testing.T) {
	raw := `[
		{"date":"05/03/2024","amount":-120.50,"description":"POS CONAD","transaction_type":"pagamento_pos"},
		{"date":"06/03/2024","amount":1500.00,"description":"BONIFICO A VOSTRO FAVORE","transaction_type":"bonifico"}
	]`

	txs := RepairTransactions(raw)
	require.Len(t, txs, 2)
	assert.Equal(t, "05/03/2024", txs[0].Date)
	assert.Equal(t, "-120.50", txs[0].Amount.String())
	assert.Equal(t, "pagamento_pos", txs[0].Type)
}

func TestRepairTransactionsCodeFences(t *testing.T) {
	fenced := "```json\n[{\"date\":\"01/02/2024\",\"amount\":10}]\n```"
	txs := RepairTransactions(fenced)
	require.Len(t, txs, 1)
	assert.Equal(t, "01/02/2024", txs[0].Date)

	bare := "```\n[{\"date\":\"01/02/2024\",\"amount\":10}]\n```"
	assert.Len(t, RepairTransactions(bare), 1)
}

func TestRepairTransactionsProseAroundArray(t *testing.T) {
	raw := `Ecco le transazioni estratte:
[{"date":"01/02/2024","amount":-5.00,"description":"commissione"}]
Fammi sapere se serve altro.`

	txs := RepairTransactions(raw)
	require.Len(t, txs, 1)
	assert.Equal(t, "commissione", txs[0].Description)
}

func TestRepairTransactionsSingleObject(t *testing.T) {
	txs := RepairTransactions(`{"date":"01/02/2024","amount":100,"description":"unico"}`)
	require.Len(t, txs, 1)
	assert.Equal(t, "unico", txs[0].Description)
}

func TestRepairTransactionsTruncatedArray(t *testing.T) {
	// Output cut mid-object: the three complete objects survive, the torn
	// fourth is discarded.
	raw := `[
		{"date":"01/03/2024","amount":-10.00,"description":"uno"},
		{"date":"02/03/2024","amount":-20.00,"description":"due"},
		{"date":"03/03/2024","amount":-30.00,"description":"tre"},
		{"date":"04/03/2024","amount":-40.0`

	txs := RepairTransactions(raw)
	require.Len(t, txs, 3)
	assert.Equal(t, "uno", txs[0].Description)
	assert.Equal(t, "tre", txs[2].Description)
}

func TestRepairTransactionsTruncatedWithPreamble(t *testing.T) {
	raw := `Risultato:
[{"date":"01/03/2024","amount":-10.00,"description":"uno"},
{"date":"02/03/2024","amount":-20.00,"descr`

	txs := RepairTransactions(raw)
	require.Len(t, txs, 1)
	assert.Equal(t, "uno", txs[0].Description)
}

func TestRepairTransactionsQuotedNumbers(t *testing.T) {
	txs := RepairTransactions(`[{"date":"01/02/2024","amount":"-42.10","balance":"1000.00"}]`)
	require.Len(t, txs, 1)
	assert.Equal(t, "-42.10", txs[0].Amount.String())
	assert.Equal(t, "1000.00", txs[0].Balance.String())
}

func TestRepairTransactionsHopelessInput(t *testing.T) {
	assert.Empty(t, RepairTransactions(""))
	assert.Empty(t, RepairTransactions("   "))
	assert.Empty(t, RepairTransactions("Nessuna transazione trovata nel documento."))
	assert.Empty(t, RepairTransactions("{{{{not json"))
}

func TestRepairTransactionsEmptyArray(t *testing.T) {
	txs := RepairTransactions("[]")
	assert.Empty(t, txs)
}
