package graph

import (
	"strings"

	"github.com/google/uuid"
)

// edgeNamespace scopes edge UUIDs so they cannot collide with UUIDs minted
// for other purposes.
var edgeNamespace = uuid.MustParse("6f1c6b1e-5d0e-4c55-9a51-2f5b8f3e7a10")

// idEscaper percent-encodes the characters ids use as separators. Doubling
// "_" is not enough: "a_" + "b" and "a" + "_b" would both give "a___b".
var idEscaper = strings.NewReplacer("%", "%25", "_", "%5F", "/", "%2F")

func idPart(s string) string {
	return idEscaper.Replace(s)
}

// SourceNodeID is the id of a source's root node.
func SourceNodeID(sourceID string) string {
	return "src_" + sourceID
}

// TableNodeID is tbl_<sourceId>_<schema>_<name>, each part escaped.
func TableNodeID(sourceID, schema, name string) string {
	return "tbl_" + idPart(sourceID) + "_" + idPart(schema) + "_" + idPart(name)
}

// CollectionNodeID is coll_<sourceId>_<db>_<name>, each part escaped.
func CollectionNodeID(sourceID, database, name string) string {
	return "coll_" + idPart(sourceID) + "_" + idPart(database) + "_" + idPart(name)
}

// ColumnNodeID is col_<tableId>_<column>.
func ColumnNodeID(tableID, column string) string {
	return "col_" + tableID + "_" + idPart(column)
}

// FieldNodeID is fld_<collectionId>_<path>. Path segments are escaped and
// then joined with slashes, so "address.city", "address_city" and a key
// literally named "address/city" stay distinct.
func FieldNodeID(collectionID, path string) string {
	segments := strings.Split(path, ".")
	for i, s := range segments {
		segments[i] = idPart(s)
	}
	return "fld_" + collectionID + "_" + strings.Join(segments, "/")
}

// EdgeID is a UUIDv5 over srcID, dstID and edgeType separated by NUL.
func EdgeID(srcID, dstID, edgeType string) string {
	return uuid.NewSHA1(edgeNamespace, []byte(srcID+"\x00"+dstID+"\x00"+edgeType)).String()
}
