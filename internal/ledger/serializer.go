package ledger

import (
	"context"
	"fmt"
	"reflect"
	"strconv"

	sdkmath "cosmossdk.io/math"
	"gorm.io/gorm/schema"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/amount"
)

// amountSerializerName is the gorm serializer tag for 128-bit amount columns. Amounts are
// stored as decimal text so no precision is lost in sqlite.
const amountSerializerName = "amount"

func init() {
	schema.RegisterSerializer(amountSerializerName, amountSerializer{})
}

type amountSerializer struct{}

func (amountSerializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue interface{}) error {
	var raw string
	switch typed := dbValue.(type) {
	case nil:
	case string:
		raw = typed
	case []byte:
		raw = string(typed)
	case int64:
		raw = strconv.FormatInt(typed, 10)
	default:
		return fmt.Errorf("ledger: unsupported amount column value %T", dbValue)
	}
	parsed, err := amount.ParseOrZero(raw)
	if err != nil {
		return fmt.Errorf("ledger: column %s: %w", field.DBName, err)
	}
	field.ReflectValueOf(ctx, dst).Set(reflect.ValueOf(parsed))
	return nil
}

func (amountSerializer) Value(_ context.Context, field *schema.Field, _ reflect.Value, fieldValue interface{}) (interface{}, error) {
	value, ok := fieldValue.(sdkmath.Uint)
	if !ok {
		return nil, fmt.Errorf("ledger: column %s is not an amount", field.DBName)
	}
	return amount.OrZero(value).String(), nil
}
