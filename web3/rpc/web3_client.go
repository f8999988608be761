package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/vocdoni/evote-tally/log"
)

const (
	// defaultRetries is the number of times to retry an RPC call on the same endpoint before switching
	defaultRetries = 2
	// defaultRetrySleep is the time to wait between retries on the same endpoint
	defaultRetrySleep = 200 * time.Millisecond
)

var defaultTimeout = 3 * time.Second

var (
	// ErrEndpointsExhausted is returned when every endpoint of the chain
	// failed the call, or when the chain has no endpoint at all.
	ErrEndpointsExhausted = errors.New("all web3 endpoints exhausted")
	// ErrPermanent wraps contract level rejections that are never retried.
	ErrPermanent = errors.New("permanent RPC error")
)

// permanentErrorPatterns defines error patterns that indicate permanent
// failures that should not be retried, such as contract reverts on an out
// of range index.
var permanentErrorPatterns = []string{
	"execution reverted",
	"invalid opcode",
}

// IsPermanentError checks if an error represents a permanent failure that
// should not be retried.
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, pattern := range permanentErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// Client implements bind.ContractCaller on top of a Web3Pool for one chain
// id, balancing the calls between the endpoints of the pool and failing over
// when one of them misbehaves.
type Client struct {
	w3p     *Web3Pool
	chainID uint64
}

var _ bind.ContractCaller = (*Client)(nil)

// ChainID returns the chain served by the client.
func (c *Client) ChainID() uint64 {
	return c.chainID
}

// CodeAt wraps ethclient.Client.CodeAt. Required by bind.ContractCaller.
func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	res, err := c.retryAndCheckErr(ctx, func(endpoint *Web3Endpoint) (any, error) {
		internalCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
		return endpoint.client.CodeAt(internalCtx, account, blockNumber)
	})
	if err != nil {
		return nil, err
	}
	return res.([]byte), nil
}

// CallContract wraps ethclient.Client.CallContract. Required by
// bind.ContractCaller.
func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	res, err := c.retryAndCheckErr(ctx, func(endpoint *Web3Endpoint) (any, error) {
		internalCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
		return endpoint.client.CallContract(internalCtx, call, blockNumber)
	})
	if err != nil {
		return nil, err
	}
	return res.([]byte), nil
}

// BlockNumber wraps ethclient.Client.BlockNumber, used for health checks.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	res, err := c.retryAndCheckErr(ctx, func(endpoint *Web3Endpoint) (any, error) {
		internalCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
		return endpoint.client.BlockNumber(internalCtx)
	})
	if err != nil {
		return 0, err
	}
	return res.(uint64), nil
}

// retryAndCheckErr runs fn against the endpoints of the chain. It first
// retries on the current endpoint and, if that keeps failing, disables it
// and moves to the next one, until the call succeeds or every endpoint has
// been tried. Permanent errors and context cancellation stop immediately.
func (c *Client) retryAndCheckErr(ctx context.Context, fn func(*Web3Endpoint) (any, error)) (any, error) {
	triedEndpoints := make(map[string]bool)

	totalEndpoints := c.w3p.NumberOfEndpoints(c.chainID, false)
	if totalEndpoints == 0 {
		return nil, fmt.Errorf("%w: no endpoints available for chainID %d", ErrEndpointsExhausted, c.chainID)
	}

	var lastErr error
	endpointAttempts := 0

	for endpointAttempts < totalEndpoints {
		endpoint, err := c.w3p.Endpoint(c.chainID)
		if err != nil {
			return nil, fmt.Errorf("%w: error getting endpoint for chainID %d: %w", ErrEndpointsExhausted, c.chainID, err)
		}
		if triedEndpoints[endpoint.URI] {
			log.Warnw("endpoint rotation returned an already tried endpoint",
				"uri", endpoint.URI, "chainID", c.chainID)
			break
		}
		triedEndpoints[endpoint.URI] = true

		var res any
		for retry := range defaultRetries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, err = fn(endpoint)
			if err == nil {
				if endpointAttempts > 0 {
					log.Infow("RPC call succeeded after endpoint switch",
						"chainID", c.chainID,
						"successfulURI", endpoint.URI,
						"endpointAttempts", endpointAttempts+1,
						"retriesOnEndpoint", retry+1)
				}
				return res, nil
			}
			if rpcErr := ParseError(err); rpcErr != nil && rpcErr.Code != 0 {
				lastErr = fmt.Errorf("%w (code: %d, data: %s)", err, rpcErr.Code, rpcErr.Data)
			} else {
				lastErr = err
			}
			if IsPermanentError(err) {
				log.Debugw("RPC returned permanent error, not retrying",
					"error", lastErr.Error(),
					"chainID", c.chainID,
					"uri", endpoint.URI)
				return nil, fmt.Errorf("%w: %w", ErrPermanent, lastErr)
			}
			if retry < defaultRetries-1 {
				select {
				case <-time.After(defaultRetrySleep):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}

		log.Warnw("endpoint failed after retries, switching to next",
			"chainID", c.chainID,
			"failedURI", endpoint.URI,
			"error", lastErr.Error(),
			"retries", defaultRetries,
			"endpointAttempt", endpointAttempts+1)
		c.w3p.DisableEndpoint(c.chainID, endpoint.URI)
		endpointAttempts++
	}

	if lastErr == nil {
		lastErr = errors.New("endpoint rotation failed")
	}
	log.Errorw(lastErr, fmt.Sprintf("no more endpoints available for chainID %d, tried %d endpoints",
		c.chainID, len(triedEndpoints)))
	return nil, fmt.Errorf("%w for chainID %d after %d attempts: %w",
		ErrEndpointsExhausted, c.chainID, endpointAttempts, lastErr)
}

// RPCError is the error returned by the RPC server
type RPCError struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Data    hexutil.Bytes `json:"data"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s (code: %d, data: %s)", e.Message, e.Code, e.Data.String())
}

func (e *RPCError) ErrorCode() int {
	return e.Code
}

func (e *RPCError) ErrorData() any {
	return e.Data
}

// ParseError tries to extract Data and Code from error,
// to reconstruct a *RPCError.
func ParseError(err error) *RPCError {
	if err == nil {
		return nil
	}
	if e, ok := err.(*RPCError); ok {
		return e
	}

	out := &RPCError{Message: err.Error()}

	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		out.Code = rpcErr.ErrorCode()
		out.Message = rpcErr.Error()
	}

	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		switch v := dataErr.ErrorData().(type) {
		case []byte:
			out.Data = hexutil.Bytes(v)
		case string:
			if b, derr := hexutil.Decode(v); derr == nil {
				out.Data = hexutil.Bytes(b)
			}
		}
	}

	return out
}
