package kmip

/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

// Tag is a KMIP tag identifier (24 bits on the wire)
type Tag uint32

// Enum is a KMIP enumeration value
type Enum uint32

// ProtocolVersion is a KMIP protocol version (major.minor)
type ProtocolVersion struct {
	Major int32
	Minor int32
}

// DefaultVersion is the protocol version used when a context is created
// without an explicit one
var DefaultVersion = ProtocolVersion{Major: 1, Minor: 0}

// DefaultSupportedVersions is a default list of versions the server accepts
var DefaultSupportedVersions = []ProtocolVersion{
	{Major: 1, Minor: 4},
	{Major: 1, Minor: 3},
	{Major: 1, Minor: 2},
	{Major: 1, Minor: 1},
	{Major: 1, Minor: 0},
}

// TTLV item types
const (
	TYPE_STRUCTURE    byte = 0x01
	TYPE_INTEGER      byte = 0x02
	TYPE_LONG_INTEGER byte = 0x03
	TYPE_BIG_INTEGER  byte = 0x04
	TYPE_ENUMERATION  byte = 0x05
	TYPE_BOOLEAN      byte = 0x06
	TYPE_TEXT_STRING  byte = 0x07
	TYPE_BYTE_STRING  byte = 0x08
	TYPE_DATE_TIME    byte = 0x09
	TYPE_INTERVAL     byte = 0x0A
)

// KMIP tags
const (
	TAG_ATTRIBUTE               Tag = 0x420008
	TAG_ATTRIBUTE_NAME          Tag = 0x42000A
	TAG_ATTRIBUTE_VALUE         Tag = 0x42000B
	TAG_BATCH_COUNT             Tag = 0x42000D
	TAG_BATCH_ITEM              Tag = 0x42000F
	TAG_CRYPTOGRAPHIC_ALGORITHM Tag = 0x420028
	TAG_CRYPTOGRAPHIC_LENGTH    Tag = 0x42002A
	TAG_KEY_BLOCK               Tag = 0x420040
	TAG_KEY_COMPRESSION_TYPE    Tag = 0x420041
	TAG_KEY_FORMAT_TYPE         Tag = 0x420042
	TAG_KEY_MATERIAL            Tag = 0x420043
	TAG_KEY_VALUE               Tag = 0x420045
	TAG_KEY_WRAPPING_DATA       Tag = 0x420046
	TAG_MAXIMUM_RESPONSE_SIZE   Tag = 0x420050
	TAG_OBJECT_TYPE             Tag = 0x420057
	TAG_OPERATION               Tag = 0x42005C
	TAG_PROTOCOL_VERSION        Tag = 0x420069
	TAG_PROTOCOL_VERSION_MAJOR  Tag = 0x42006A
	TAG_PROTOCOL_VERSION_MINOR  Tag = 0x42006B
	TAG_REQUEST_HEADER          Tag = 0x420077
	TAG_REQUEST_MESSAGE         Tag = 0x420078
	TAG_REQUEST_PAYLOAD         Tag = 0x420079
	TAG_RESPONSE_HEADER         Tag = 0x42007A
	TAG_RESPONSE_MESSAGE        Tag = 0x42007B
	TAG_RESPONSE_PAYLOAD        Tag = 0x42007C
	TAG_RESULT_MESSAGE          Tag = 0x42007D
	TAG_RESULT_REASON           Tag = 0x42007E
	TAG_RESULT_STATUS           Tag = 0x42007F
	TAG_SYMMETRIC_KEY           Tag = 0x42008F
	TAG_TEMPLATE_ATTRIBUTE      Tag = 0x420091
	TAG_TIME_STAMP              Tag = 0x420092
	TAG_UNIQUE_BATCH_ITEM_ID    Tag = 0x420093
	TAG_UNIQUE_IDENTIFIER       Tag = 0x420094
	TAG_WRAPPING_METHOD         Tag = 0x42009E
)

// Operations
const (
	OPERATION_CREATE            Enum = 0x01
	OPERATION_REGISTER          Enum = 0x03
	OPERATION_LOCATE            Enum = 0x08
	OPERATION_GET               Enum = 0x0A
	OPERATION_GET_ATTRIBUTES    Enum = 0x0B
	OPERATION_ACTIVATE          Enum = 0x12
	OPERATION_REVOKE            Enum = 0x13
	OPERATION_DESTROY           Enum = 0x14
	OPERATION_QUERY             Enum = 0x18
	OPERATION_DISCOVER_VERSIONS Enum = 0x1E
)

// Result statuses
const (
	RESULT_STATUS_SUCCESS           Enum = 0x00
	RESULT_STATUS_OPERATION_FAILED  Enum = 0x01
	RESULT_STATUS_OPERATION_PENDING Enum = 0x02
	RESULT_STATUS_OPERATION_UNDONE  Enum = 0x03
)

// Result reasons
const (
	RESULT_REASON_ITEM_NOT_FOUND          Enum = 0x01
	RESULT_REASON_RESPONSE_TOO_LARGE      Enum = 0x02
	RESULT_REASON_AUTHENTICATION_FAILED   Enum = 0x03
	RESULT_REASON_INVALID_MESSAGE         Enum = 0x04
	RESULT_REASON_OPERATION_NOT_SUPPORTED Enum = 0x05
	RESULT_REASON_MISSING_DATA            Enum = 0x06
	RESULT_REASON_INVALID_FIELD           Enum = 0x07
	RESULT_REASON_FEATURE_NOT_SUPPORTED   Enum = 0x08
	RESULT_REASON_PERMISSION_DENIED       Enum = 0x0A
	RESULT_REASON_OBJECT_ARCHIVED         Enum = 0x0B
	RESULT_REASON_GENERAL_FAILURE         Enum = 0x100
)

// Object types
const (
	OBJECT_TYPE_CERTIFICATE   Enum = 0x01
	OBJECT_TYPE_SYMMETRIC_KEY Enum = 0x02
	OBJECT_TYPE_PUBLIC_KEY    Enum = 0x03
	OBJECT_TYPE_PRIVATE_KEY   Enum = 0x04
	OBJECT_TYPE_SPLIT_KEY     Enum = 0x05
	OBJECT_TYPE_SECRET_DATA   Enum = 0x07
	OBJECT_TYPE_OPAQUE_OBJECT Enum = 0x08
)

// Key format types
const (
	KEY_FORMAT_RAW         Enum = 0x01
	KEY_FORMAT_OPAQUE      Enum = 0x02
	KEY_FORMAT_PKCS1       Enum = 0x03
	KEY_FORMAT_PKCS8       Enum = 0x04
	KEY_FORMAT_X509        Enum = 0x05
	KEY_FORMAT_TRANSPARENT Enum = 0x07
)

// Cryptographic algorithms
const (
	CRYPTO_DES         Enum = 0x01
	CRYPTO_TRIPLE_DES  Enum = 0x02
	CRYPTO_AES         Enum = 0x03
	CRYPTO_RSA         Enum = 0x04
	CRYPTO_HMAC_SHA256 Enum = 0x09
)

// Wrapping methods
const (
	WRAPPING_METHOD_ENCRYPT Enum = 0x01
)

// Attribute names
const (
	ATTRIBUTE_NAME_CRYPTOGRAPHIC_ALGORITHM = "Cryptographic Algorithm"
	ATTRIBUTE_NAME_CRYPTOGRAPHIC_LENGTH    = "Cryptographic Length"
	ATTRIBUTE_NAME_NAME                    = "Name"
)

var operationMap = map[Enum]string{
	OPERATION_CREATE:            "Create",
	OPERATION_REGISTER:          "Register",
	OPERATION_LOCATE:            "Locate",
	OPERATION_GET:               "Get",
	OPERATION_GET_ATTRIBUTES:    "Get Attributes",
	OPERATION_ACTIVATE:          "Activate",
	OPERATION_REVOKE:            "Revoke",
	OPERATION_DESTROY:           "Destroy",
	OPERATION_QUERY:             "Query",
	OPERATION_DISCOVER_VERSIONS: "Discover Versions",
}
