package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name string `json:"name"`
}

func TestFlexList_SingleObjectOrArray(t *testing.T) {
	var one FlexList[item]
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Mon AM"}`), &one))
	assert.Equal(t, []item{{Name: "Mon AM"}}, one.Slice())

	var many FlexList[item]
	require.NoError(t, json.Unmarshal([]byte(`[{"name":"a"},{"name":"b"}]`), &many))
	assert.Len(t, many, 2)

	var none FlexList[item]
	require.NoError(t, json.Unmarshal([]byte(`null`), &none))
	assert.Nil(t, none.Slice())
}

func TestFlexString_Scalars(t *testing.T) {
	var doc struct {
		Amount  FlexString `json:"amount"`
		DueDate FlexString `json:"dueDate"`
		Paid    FlexString `json:"paid"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount":45.2,"dueDate":"2026-11-01","paid":false}`), &doc))

	assert.Equal(t, "45.2", doc.Amount.String())
	assert.Equal(t, "2026-11-01", doc.DueDate.String())
	assert.Equal(t, "false", doc.Paid.String())
}
