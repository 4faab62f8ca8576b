package server

import (
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/jackc/pgx/v5/pgtype"

	"pgmem/internal/engine"
	"pgmem/internal/types"
)

// typeOID maps an engine type to the OID clients decode it by. Untyped
// columns are sent as text.
func typeOID(t types.DataType) (oid uint32, size int16) {
	switch t {
	case types.TypeBool:
		return pgtype.BoolOID, 1
	case types.TypeInt:
		return pgtype.Int4OID, 4
	case types.TypeBigInt:
		return pgtype.Int8OID, 8
	case types.TypeNumeric:
		return pgtype.NumericOID, -1
	case types.TypeFloat:
		return pgtype.Float8OID, 8
	case types.TypeTimestamp:
		return pgtype.TimestampOID, 8
	default:
		return pgtype.TextOID, -1
	}
}

func rowDescription(cols []engine.Column) *pgproto3.RowDescription {
	fields := make([]pgproto3.FieldDescription, len(cols))
	for i, c := range cols {
		oid, size := typeOID(c.Type)
		fields[i] = pgproto3.FieldDescription{
			Name:         []byte(c.Name),
			DataTypeOID:  oid,
			DataTypeSize: size,
			TypeModifier: -1,
			Format:       pgproto3.TextFormat,
		}
	}
	return &pgproto3.RowDescription{Fields: fields}
}

// dataRow encodes row in text format; NULL is a nil value.
func dataRow(row types.Row) *pgproto3.DataRow {
	values := make([][]byte, len(row))
	for i, v := range row {
		if v.IsNull() {
			continue
		}
		values[i] = []byte(types.Format(v))
	}
	return &pgproto3.DataRow{Values: values}
}

func errorResponse(pg *pgconn.PgError) *pgproto3.ErrorResponse {
	return &pgproto3.ErrorResponse{
		Severity:            pg.Severity,
		SeverityUnlocalized: pg.SeverityUnlocalized,
		Code:                pg.Code,
		Message:             pg.Message,
		Detail:              pg.Detail,
		Hint:                pg.Hint,
		Position:            pg.Position,
		SchemaName:          pg.SchemaName,
		TableName:           pg.TableName,
		ColumnName:          pg.ColumnName,
		DataTypeName:        pg.DataTypeName,
		ConstraintName:      pg.ConstraintName,
	}
}

func noticeResponse(n *pgconn.Notice) *pgproto3.NoticeResponse {
	return (*pgproto3.NoticeResponse)(errorResponse((*pgconn.PgError)(n)))
}
