// Package rpcclient is the JSON-RPC client the CLI uses to talk to a running
// fusiond.
package rpcclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	jsonrpc "github.com/crossmesh/fusion/daemon/rpc"
)

type RequestCreateSwap struct {
	SourceRecipient string `json:"sourceRecipient" binding:"required"`
	SourceToken     string `json:"sourceToken" binding:"required"`
	SourceAmount    string `json:"sourceAmount" binding:"required"`
	DestRecipient   string `json:"destRecipient" binding:"required"`
	DestToken       string `json:"destToken" binding:"required"`
	DestAmount      string `json:"destAmount" binding:"required"`
	SourceTimelock  int64  `json:"sourceTimelock" binding:"required"`
}

type RequestFillSwap struct {
	SwapID       string `json:"swapId" binding:"required"`
	Resolver     string `json:"resolver" binding:"required"`
	DestTimelock int64  `json:"destTimelock" binding:"required"`
}

type RequestBidFill struct {
	SwapID        string `json:"swapId" binding:"required"`
	AuctionID     uint64 `json:"auctionId" binding:"required"`
	Resolver      string `json:"resolver" binding:"required"`
	FillAmount    string `json:"fillAmount,omitempty"`
	ExpectedPrice string `json:"expectedPrice,omitempty"`
	DestTimelock  int64  `json:"destTimelock" binding:"required"`
}

type RequestSwapID struct {
	SwapID string `json:"swapId" binding:"required"`
}

type RequestCreateAuction struct {
	Seller      string `json:"seller" binding:"required"`
	Token       string `json:"token" binding:"required"`
	StartAmount string `json:"startAmount" binding:"required"`
	MinAmount   string `json:"minAmount"`
	Duration    int64  `json:"duration" binding:"required"`
	StepTime    int64  `json:"stepTime" binding:"required"`
	StepAmount  string `json:"stepAmount" binding:"required"`
}

type RequestAuctionID struct {
	AuctionID uint64 `json:"auctionId" binding:"required"`
}

type RequestPlaceBid struct {
	AuctionID     uint64 `json:"auctionId" binding:"required"`
	Buyer         string `json:"buyer" binding:"required"`
	FillAmount    string `json:"fillAmount,omitempty"`
	ExpectedPrice string `json:"expectedPrice,omitempty"`
}

type RequestAuctionCaller struct {
	AuctionID uint64 `json:"auctionId" binding:"required"`
	Caller    string `json:"caller" binding:"required"`
}

type Client interface {
	CreateSwap(data RequestCreateSwap) (json.RawMessage, error)
	FillSwap(data RequestFillSwap) (json.RawMessage, error)
	BidFill(data RequestBidFill) (json.RawMessage, error)
	SettleSwap(data RequestSwapID) (json.RawMessage, error)
	RefundSwap(data RequestSwapID) (json.RawMessage, error)
	GetSwap(data RequestSwapID) (json.RawMessage, error)
	GetSecret(data RequestSwapID) (json.RawMessage, error)
	CreateAuction(data RequestCreateAuction) (json.RawMessage, error)
	GetPrice(data RequestAuctionID) (json.RawMessage, error)
	PlaceBid(data RequestPlaceBid) (json.RawMessage, error)
	CancelAuction(data RequestAuctionCaller) (json.RawMessage, error)
	WithdrawProceeds(data RequestAuctionCaller) (json.RawMessage, error)
	GetAuction(data RequestAuctionID) (json.RawMessage, error)
}

type client struct {
	User      string
	Pass      string
	Protocol  string
	RPCServer string
}

func NewClient(userName string, password string, protocol string, rpcServer string) Client {
	return &client{
		User:      userName,
		Pass:      password,
		Protocol:  protocol,
		RPCServer: rpcServer,
	}
}

// SendPostRequest sends the marshalled JSON-RPC command using HTTP-POST mode
// to the configured server and returns either the result field or the error
// field of the JSON-RPC response.
func (c *client) SendPostRequest(method string, jsonData []byte) (json.RawMessage, error) {
	payload := jsonrpc.Request{
		Version: "2.0",
		Method:  method,
		Params:  json.RawMessage(jsonData),
	}
	marshalledJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := c.Protocol + "://" + c.RPCServer
	bodyReader := bytes.NewReader(marshalledJSON)
	httpRequest, err := http.NewRequest("POST", url, bodyReader)
	if err != nil {
		return nil, err
	}
	httpRequest.Close = true
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.SetBasicAuth(c.User, c.Pass)

	httpResponse, err := http.DefaultClient.Do(httpRequest)
	if err != nil {
		return nil, err
	}

	respBytes, err := io.ReadAll(httpResponse.Body)
	httpResponse.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("error reading json reply: %v", err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		if len(respBytes) == 0 {
			return nil, fmt.Errorf("%d %s", httpResponse.StatusCode,
				http.StatusText(httpResponse.StatusCode))
		}
		return nil, fmt.Errorf("%s", respBytes)
	}

	var resp jsonrpc.Response
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("%s: %s", resp.Error.Message, resp.Error.Data)
	}
	return resp.Result, nil
}

func (c *client) call(method string, data interface{}) (json.RawMessage, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.SendPostRequest(method, jsonData)
}

func (c *client) CreateSwap(data RequestCreateSwap) (json.RawMessage, error) {
	return c.call("createSwap", data)
}

func (c *client) FillSwap(data RequestFillSwap) (json.RawMessage, error) {
	return c.call("fillSwap", data)
}

func (c *client) BidFill(data RequestBidFill) (json.RawMessage, error) {
	return c.call("bidFill", data)
}

func (c *client) SettleSwap(data RequestSwapID) (json.RawMessage, error) {
	return c.call("settleSwap", data)
}

func (c *client) RefundSwap(data RequestSwapID) (json.RawMessage, error) {
	return c.call("refundSwap", data)
}

func (c *client) GetSwap(data RequestSwapID) (json.RawMessage, error) {
	return c.call("getSwap", data)
}

func (c *client) GetSecret(data RequestSwapID) (json.RawMessage, error) {
	return c.call("getSecret", data)
}

func (c *client) CreateAuction(data RequestCreateAuction) (json.RawMessage, error) {
	return c.call("createAuction", data)
}

func (c *client) GetPrice(data RequestAuctionID) (json.RawMessage, error) {
	return c.call("getPrice", data)
}

func (c *client) PlaceBid(data RequestPlaceBid) (json.RawMessage, error) {
	return c.call("placeBid", data)
}

func (c *client) CancelAuction(data RequestAuctionCaller) (json.RawMessage, error) {
	return c.call("cancelAuction", data)
}

func (c *client) WithdrawProceeds(data RequestAuctionCaller) (json.RawMessage, error) {
	return c.call("withdrawProceeds", data)
}

func (c *client) GetAuction(data RequestAuctionID) (json.RawMessage, error) {
	return c.call("getAuction", data)
}
