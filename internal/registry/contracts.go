package registry

// Minimal ABI fragments, packed/unpacked via go-ethereum/accounts/abi the
// same way the reference facilitator's signer does in ReadContract/WriteContract,
// instead of pulling in a full generated contract binding for methods this
// service never needs beyond these five.

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

const eip3009ABI = `[
	{"constant":true,"inputs":[{"name":"authorizer","type":"address"},{"name":"nonce","type":"bytes32"}],"name":"authorizationState","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[
		{"name":"from","type":"address"},
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"validAfter","type":"uint256"},
		{"name":"validBefore","type":"uint256"},
		{"name":"nonce","type":"bytes32"},
		{"name":"v","type":"uint8"},
		{"name":"r","type":"bytes32"},
		{"name":"s","type":"bytes32"}
	],"name":"transferWithAuthorization","outputs":[],"type":"function"}
]`

const (
	methodBalanceOf                  = "balanceOf"
	methodAllowance                  = "allowance"
	methodTransferFrom                = "transferFrom"
	methodAuthorizationState         = "authorizationState"
	methodTransferWithAuthorization  = "transferWithAuthorization"
)
