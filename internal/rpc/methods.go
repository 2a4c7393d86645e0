package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

// Daemon method names consumed by the core. The read-through cache keys its
// allow-list on these constants.
const (
	MethodGetBlockchainInfo = "getblockchaininfo"
	MethodGetMiningInfo     = "getmininginfo"
	MethodGetNetworkInfo    = "getnetworkinfo"
	MethodGetDifficulty     = "getdifficulty"
	MethodGetBlock          = "getblock"
	MethodGetBestBlockHash  = "getbestblockhash"
	MethodGetRawTransaction = "getrawtransaction"
	MethodGetRawMempool     = "getrawmempool"
	MethodGetAddressTxIDs   = "getaddresstxids"
	MethodGetAddressUTXOs   = "getaddressutxos"
	MethodListCurrencies    = "listcurrencies"
	MethodGetIdentity       = "getidentity"
)

// BlockchainInfo mirrors the daemon's getblockchaininfo response
type BlockchainInfo struct {
	Chain                string  `json:"chain"`
	Blocks               int64   `json:"blocks"`
	BestBlockHash        string  `json:"bestblockhash"`
	Difficulty           float64 `json:"difficulty"`
	VerificationProgress float64 `json:"verificationprogress"`
	SizeOnDisk           int64   `json:"size_on_disk"`
}

// MiningInfo mirrors the daemon's getmininginfo response
type MiningInfo struct {
	Blocks           int64   `json:"blocks"`
	Difficulty       float64 `json:"difficulty"`
	NetworkHashPS    float64 `json:"networkhashps"`
	PooledTx         int64   `json:"pooledtx"`
	Staking          bool    `json:"staking"`
	GeneratedBlocks  int64   `json:"generatedblocks"`
	AverageBlockFees float64 `json:"averageblockfees"`
}

// NetworkInfo mirrors the daemon's getnetworkinfo response
type NetworkInfo struct {
	Version         int64   `json:"version"`
	Subversion      string  `json:"subversion"`
	ProtocolVersion int64   `json:"protocolversion"`
	Connections     int64   `json:"connections"`
	RelayFee        float64 `json:"relayfee"`
}

// Block is a verbose getblock response. With verbosity 2 each entry of Tx is
// a fully decoded transaction.
type Block struct {
	Hash   string `json:"hash"`
	Height int64  `json:"height"`
	Time   int64  `json:"time"`
	// Tx requires verbosity 2; lower verbosities leave it empty.
	Tx                []RawTransaction `json:"tx"`
	PreviousBlockHash string           `json:"previousblockhash"`
	ValidationType    string           `json:"validationtype"`
}

// RawTransaction is a verbose getrawtransaction response
type RawTransaction struct {
	TxID          string `json:"txid"`
	BlockHash     string `json:"blockhash"`
	Height        int64  `json:"height"`
	BlockTime     int64  `json:"blocktime"`
	Vin           []Vin  `json:"vin"`
	Vout          []Vout `json:"vout"`
	Confirmations int64  `json:"confirmations"`
}

// Vin is a transaction input
type Vin struct {
	Coinbase string `json:"coinbase,omitempty"`
	TxID     string `json:"txid,omitempty"`
	Vout     int    `json:"vout"`
}

// IsCoinbase reports whether this input mints new coins
func (v *Vin) IsCoinbase() bool {
	return v.Coinbase != ""
}

// Vout is a transaction output
type Vout struct {
	Value        float64      `json:"value"`
	N            int          `json:"n"`
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
}

// ScriptPubKey carries the destination addresses of an output
type ScriptPubKey struct {
	Addresses []string `json:"addresses"`
	Type      string   `json:"type"`
}

// AddressTxID is one entry of a ranged getaddresstxids response
type AddressTxID struct {
	TxID   string `json:"txid"`
	Height int64  `json:"height"`
}

// AddressUTXO is one entry of a getaddressutxos response
type AddressUTXO struct {
	Address     string             `json:"address"`
	TxID        string             `json:"txid"`
	OutputIndex int                `json:"outputIndex"`
	Satoshis    int64              `json:"satoshis"`
	Height      int64              `json:"height"`
	Currencies  map[string]float64 `json:"currencyvalues,omitempty"`
}

// CurrencyDefinition is one entry of a listcurrencies response
type CurrencyDefinition struct {
	Name          string  `json:"name"`
	CurrencyID    string  `json:"currencyid"`
	ParentID      string  `json:"parent"`
	Options       int64   `json:"options"`
	InitialSupply float64 `json:"initialsupply"`
	StartBlock    int64   `json:"startblock"`
}

// IdentityResult mirrors the daemon's getidentity response
type IdentityResult struct {
	Identity struct {
		Name                string   `json:"name"`
		IdentityAddress     string   `json:"identityaddress"`
		PrimaryAddresses    []string `json:"primaryaddresses"`
		MinimumSignatures   int      `json:"minimumsignatures"`
		Parent              string   `json:"parent"`
		RevocationAuthority string   `json:"revocationauthority"`
		RecoveryAuthority   string   `json:"recoveryauthority"`
		Timelock            int64    `json:"timelock"`
		Flags               int64    `json:"flags"`
	} `json:"identity"`
	Status       string `json:"status"`
	BlockHeight  int64  `json:"blockheight"`
	TxID         string `json:"txid"`
	FriendlyName string `json:"friendlyname"`
}

// GetBlockchainInfo fetches chain-summary state
func (c *Client) GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	return callTyped[BlockchainInfo](ctx, c, MethodGetBlockchainInfo)
}

// GetMiningInfo fetches mining/staking state
func (c *Client) GetMiningInfo(ctx context.Context) (*MiningInfo, error) {
	return callTyped[MiningInfo](ctx, c, MethodGetMiningInfo)
}

// GetNetworkInfo fetches peer/network state
func (c *Client) GetNetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	return callTyped[NetworkInfo](ctx, c, MethodGetNetworkInfo)
}

// GetDifficulty fetches the current proof-of-work difficulty
func (c *Client) GetDifficulty(ctx context.Context) (float64, error) {
	raw, err := c.Call(ctx, MethodGetDifficulty)
	if err != nil {
		return 0, err
	}
	var difficulty float64
	if err := json.Unmarshal(raw, &difficulty); err != nil {
		return 0, fmt.Errorf("failed to decode %s response: %w", MethodGetDifficulty, err)
	}
	return difficulty, nil
}

// GetBestBlockHash fetches the tip hash
func (c *Client) GetBestBlockHash(ctx context.Context) (string, error) {
	raw, err := c.Call(ctx, MethodGetBestBlockHash)
	if err != nil {
		return "", err
	}
	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil {
		return "", fmt.Errorf("failed to decode %s response: %w", MethodGetBestBlockHash, err)
	}
	return hash, nil
}

// GetBlock fetches a block by hash or height at the given verbosity
func (c *Client) GetBlock(ctx context.Context, hashOrHeight interface{}, verbosity int) (*Block, error) {
	return callTyped[Block](ctx, c, MethodGetBlock, hashOrHeight, verbosity)
}

// GetRawTransaction fetches a decoded transaction by txid
func (c *Client) GetRawTransaction(ctx context.Context, txid string) (*RawTransaction, error) {
	return callTyped[RawTransaction](ctx, c, MethodGetRawTransaction, txid, 1)
}

// GetRawMempool fetches the txids currently in the mempool
func (c *Client) GetRawMempool(ctx context.Context) ([]string, error) {
	raw, err := c.Call(ctx, MethodGetRawMempool)
	if err != nil {
		return nil, err
	}
	var txids []string
	if err := json.Unmarshal(raw, &txids); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", MethodGetRawMempool, err)
	}
	return txids, nil
}

// GetAddressTxIDs fetches the txids touching an address within a height range
func (c *Client) GetAddressTxIDs(ctx context.Context, address string, start, end int64) ([]AddressTxID, error) {
	raw, err := c.Call(ctx, MethodGetAddressTxIDs, map[string]interface{}{
		"addresses": []string{address},
		"start":     start,
		"end":       end,
	})
	if err != nil {
		return nil, err
	}

	// Depending on daemon version the response is either plain txid strings
	// or {txid, height} objects.
	var entries []AddressTxID
	if err := json.Unmarshal(raw, &entries); err == nil {
		return entries, nil
	}
	var txids []string
	if err := json.Unmarshal(raw, &txids); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", MethodGetAddressTxIDs, err)
	}
	entries = make([]AddressTxID, len(txids))
	for i, txid := range txids {
		entries[i] = AddressTxID{TxID: txid}
	}
	return entries, nil
}

// GetAddressUTXOs fetches the unspent outputs of an address
func (c *Client) GetAddressUTXOs(ctx context.Context, address string) ([]AddressUTXO, error) {
	raw, err := c.Call(ctx, MethodGetAddressUTXOs, map[string]interface{}{
		"addresses": []string{address},
	})
	if err != nil {
		return nil, err
	}
	var utxos []AddressUTXO
	if err := json.Unmarshal(raw, &utxos); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", MethodGetAddressUTXOs, err)
	}
	return utxos, nil
}

// ListCurrencies fetches the currency definitions known to the daemon
func (c *Client) ListCurrencies(ctx context.Context) ([]CurrencyDefinition, error) {
	raw, err := c.Call(ctx, MethodListCurrencies)
	if err != nil {
		return nil, err
	}
	var currencies []CurrencyDefinition
	if err := json.Unmarshal(raw, &currencies); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", MethodListCurrencies, err)
	}
	return currencies, nil
}

// GetIdentity resolves a VerusID by name or i-address
func (c *Client) GetIdentity(ctx context.Context, nameOrAddress string) (*IdentityResult, error) {
	return callTyped[IdentityResult](ctx, c, MethodGetIdentity, nameOrAddress)
}

// callTyped calls a method and decodes the result into T
func callTyped[T any](ctx context.Context, c *Client, method string, params ...interface{}) (*T, error) {
	raw, err := c.Call(ctx, method, params...)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	return &result, nil
}
