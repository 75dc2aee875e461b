package runtime

import (
	"github.com/satishbabariya/prisma-engine/internal/mapper"
	"github.com/satishbabariya/prisma-engine/query"
)

// Decode copies a record into the struct dest points to. Fields match by
// db tag, json tag, then name; related records decode into nested structs,
// pointers and slices.
//
//	var b struct {
//		ID       int64     `db:"id"`
//		Customer *Customer `db:"customer"`
//	}
//	err := runtime.Decode(rec, &b)
func Decode(rec query.Record, dest any) error {
	return mapper.Decode(rec, dest)
}

// DecodeAll copies records into the slice dest points to.
func DecodeAll(recs []query.Record, dest any) error {
	return mapper.DecodeAll(recs, dest)
}
