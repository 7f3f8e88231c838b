package ethclient

import "strconv"

// EthereumNetwork identifies a chain by its network id.
type EthereumNetwork int64

const (
	NetworkUnknown EthereumNetwork = -1
	NetworkOlympic EthereumNetwork = 0
	NetworkMainnet EthereumNetwork = 1
	NetworkRopsten EthereumNetwork = 3
	NetworkRinkeby EthereumNetwork = 4
	NetworkGoerli  EthereumNetwork = 5
	NetworkKovan   EthereumNetwork = 42
)

// NetworkFromID maps a network id onto the known set. Unrecognized ids map to
// NetworkUnknown rather than failing; new chains appear faster than this list
// is updated.
func NetworkFromID(id int64) EthereumNetwork {
	switch EthereumNetwork(id) {
	case NetworkOlympic, NetworkMainnet, NetworkRopsten, NetworkRinkeby, NetworkGoerli, NetworkKovan:
		return EthereumNetwork(id)
	default:
		return NetworkUnknown
	}
}

func (n EthereumNetwork) String() string {
	switch n {
	case NetworkOlympic:
		return "olympic"
	case NetworkMainnet:
		return "mainnet"
	case NetworkRopsten:
		return "ropsten"
	case NetworkRinkeby:
		return "rinkeby"
	case NetworkGoerli:
		return "goerli"
	case NetworkKovan:
		return "kovan"
	default:
		return "unknown(" + strconv.FormatInt(int64(n), 10) + ")"
	}
}
