package rpc

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Method is one JSON-RPC method exposed by the daemon.
type Method interface {
	Name() string
	Query(params json.RawMessage) (json.RawMessage, error)
}

type RPC interface {
	AddMethod(method Method)
	HandleJSONRPC(ctx *gin.Context)
	Run(addr string) error
}

type rpc struct {
	methods map[string]Method
	authsha [sha256.Size]byte
	logger  *zap.Logger
}

// Request defines a JSON-RPC 2.0 request object.
type Request struct {
	Version string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response defines a JSON-RPC 2.0 response object.
type Response struct {
	Version string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error defines a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// Error codes
const (
	ErrorCodeParseError        = -32700
	ErrorMessageParseError     = "Parse error"
	ErrorCodeMethodNotFound    = -32601
	ErrorMessageMethodNotFound = "Method not found"
	ErrorCodeInternalError     = -32603
	ErrorMessageInternalError  = "Internal error"
)

func NewResponse(id interface{}, result json.RawMessage, err *Error) Response {
	return Response{
		Version: "2.0",
		ID:      id,
		Result:  result,
		Error:   err,
	}
}

func NewError(code int, message string, data string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

func NewServer(user, password string, logger *zap.Logger) RPC {
	if user == "" && password == "" {
		panic("RPC username and password must be specified")
	}
	login := user + ":" + password
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(login))

	return &rpc{
		methods: make(map[string]Method),
		authsha: sha256.Sum256([]byte(auth)),
		logger:  logger,
	}
}

func (r *rpc) AddMethod(method Method) {
	r.methods[method.Name()] = method
}

func (r *rpc) HandleJSONRPC(ctx *gin.Context) {
	req := Request{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, NewResponse(req.ID, nil, NewError(ErrorCodeParseError, ErrorMessageParseError, err.Error())))
		return
	}

	method, ok := r.methods[req.Method]
	if !ok {
		ctx.JSON(http.StatusNotFound, NewResponse(req.ID, nil, NewError(ErrorCodeMethodNotFound, ErrorMessageMethodNotFound, "")))
		return
	}

	result, err := method.Query(req.Params)
	if err != nil {
		r.logger.Error("rpc method failed", zap.String("method", req.Method), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, NewResponse(req.ID, nil, NewError(ErrorCodeInternalError, ErrorMessageInternalError, err.Error())))
		return
	}
	ctx.JSON(http.StatusOK, NewResponse(req.ID, result, nil))
}

func (r *rpc) authenticate(ctx *gin.Context) {
	auth := ctx.GetHeader("Authorization")
	authsha := sha256.Sum256([]byte(auth))
	if subtle.ConstantTimeCompare(authsha[:], r.authsha[:]) != 1 {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, NewResponse(nil, nil, NewError(http.StatusUnauthorized, "unauthorized", "")))
		return
	}
	ctx.Next()
}

func (r *rpc) Run(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	server := gin.New()
	server.Use(cors.Default())
	authorized := server.Group("/", r.authenticate)
	authorized.POST("", r.HandleJSONRPC)
	return server.Run(addr)
}
