package polymarket

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	PolygonChainID = 137

	exchangeDomainName    = "Polymarket CTF Exchange"
	exchangeDomainVersion = "1"

	// Verifying contracts on Polygon mainnet.
	CTFExchangeAddress     = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	NegRiskExchangeAddress = "0xC5d563A36AE78145C45a50134d48A1215220f80a"

	zeroAddress = "0x0000000000000000000000000000000000000000"
)

// Signature types accepted by the exchange.
const (
	SignatureEOA        = 0
	SignaturePolyProxy  = 1
	SignatureGnosisSafe = 2
)

var (
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

// Signer signs CLOB orders with EIP-712.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
}

// NewSigner parses a hex secp256k1 key, with or without 0x.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("polymarket/signer: invalid private key: %w", err)
	}
	if chainID == 0 {
		chainID = PolygonChainID
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}, nil
}

// Address is the EOA derived from the key.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// SignOrder fills o.Signature. negRisk selects the verifying contract.
func (s *Signer) SignOrder(o *SignedOrder, negRisk bool) error {
	contract := CTFExchangeAddress
	if negRisk {
		contract = NegRiskExchangeAddress
	}

	structHash, err := orderStructHash(*o)
	if err != nil {
		return err
	}

	digest := ethcrypto.Keccak256(concatBytes(
		[]byte{0x19, 0x01},
		domainSeparator(s.chainID, contract),
		structHash,
	))

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return fmt.Errorf("polymarket/signer: signing: %w", err)
	}
	// go-ethereum returns v in {0,1}
	if sig[64] < 27 {
		sig[64] += 27
	}
	o.Signature = "0x" + hex.EncodeToString(sig)
	return nil
}

func domainSeparator(chainID int64, contract string) []byte {
	return ethcrypto.Keccak256(concatBytes(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte(exchangeDomainName)),
		ethcrypto.Keccak256([]byte(exchangeDomainVersion)),
		bigIntTo32Bytes(big.NewInt(chainID)),
		common.LeftPadBytes(common.HexToAddress(contract).Bytes(), 32),
	))
}

func orderStructHash(o SignedOrder) ([]byte, error) {
	nums := make([][]byte, 0, 6)
	for _, f := range []struct{ name, value string }{
		{"tokenId", o.TokenID},
		{"makerAmount", o.MakerAmount},
		{"takerAmount", o.TakerAmount},
		{"expiration", o.Expiration},
		{"nonce", o.Nonce},
		{"feeRateBps", o.FeeRateBps},
	} {
		n, ok := new(big.Int).SetString(f.value, 10)
		if !ok {
			return nil, fmt.Errorf("polymarket/signer: invalid %s %q", f.name, f.value)
		}
		nums = append(nums, bigIntTo32Bytes(n))
	}

	var side int64
	switch Side(o.Side) {
	case SideBuy:
		side = 0
	case SideSell:
		side = 1
	default:
		return nil, fmt.Errorf("polymarket/signer: invalid side %q", o.Side)
	}

	return ethcrypto.Keccak256(concatBytes(
		orderTypeHash,
		bigIntTo32Bytes(big.NewInt(o.Salt)),
		common.LeftPadBytes(common.HexToAddress(o.Maker).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Signer).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Taker).Bytes(), 32),
		nums[0], // tokenId
		nums[1], // makerAmount
		nums[2], // takerAmount
		nums[3], // expiration
		nums[4], // nonce
		nums[5], // feeRateBps
		bigIntTo32Bytes(big.NewInt(side)),
		bigIntTo32Bytes(big.NewInt(int64(o.SignatureType))),
	)), nil
}

func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
