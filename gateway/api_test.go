// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/crypto/fhe"
	"github.com/luxfi/fhevm/utils"
)

const (
	testChainID = 31337
	aliceKey    = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	bobKey      = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var (
	testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testACL      = common.HexToAddress("0x339EcE85B9E11a3A3AA557582784a15d7F82AAf2")
	userHandle   = common.HexToHash("0x01")
	publicHandle = common.HexToHash("0x02")
	brokenHandle = common.HexToHash("0x03")
)

var errFakeDecrypt = errors.New("fake decrypt failure")

// fakeKeyring treats a ciphertext as the big-endian bytes of its plaintext.
type fakeKeyring struct{}

func (fakeKeyring) ChainID() uint64            { return testChainID }
func (fakeKeyring) ACLAddress() common.Address { return testACL }
func (fakeKeyring) PublicKey() []byte          { return []byte{0xfe, 0xed} }

func (fakeKeyring) Decrypt(ciphertext []byte, _ fhevm.Width) (*big.Int, error) {
	if len(ciphertext) == 0 {
		return nil, errFakeDecrypt
	}
	return new(big.Int).SetBytes(ciphertext), nil
}

func newSigner(t *testing.T, key string) *fhevm.LocalSigner {
	signer, err := fhevm.NewLocalSignerFromHex(key, big.NewInt(testChainID))
	require.NoError(t, err)
	return signer
}

func newTestGateway(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	s := NewServer(log.NewNoOpLogger(), fakeKeyring{}, nil)

	alice, err := newSigner(t, aliceKey).Address(context.Background())
	require.NoError(t, err)
	allowed := set.NewSet[common.Address](1)
	allowed.Add(alice)

	require.NoError(t, s.store.add(
		[]common.Hash{userHandle, publicHandle, brokenHandle},
		[]*entry{
			{
				contract:   testContract,
				ciphertext: []byte{42},
				width:      fhevm.Uint8,
				allowed:    allowed,
			},
			{
				contract:   testContract,
				ciphertext: []byte{0x01, 0x00},
				width:      fhevm.Uint16,
				public:     true,
			},
			{
				contract: testContract,
				width:    fhevm.Uint8,
				public:   true,
			},
		},
	))

	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv
}

func TestUserDecrypt(t *testing.T) {
	_, srv := newTestGateway(t)

	tests := []struct {
		name       string
		signer     fhevm.Signer
		contract   common.Address
		handle     common.Hash
		want       int64
		wantStatus int
	}{
		{
			name:     "allowed account",
			signer:   newSigner(t, aliceKey),
			contract: testContract,
			handle:   userHandle,
			want:     42,
		},
		{
			name:       "account not on the access list",
			signer:     newSigner(t, bobKey),
			contract:   testContract,
			handle:     userHandle,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "unknown handle",
			signer:     newSigner(t, aliceKey),
			contract:   testContract,
			handle:     common.HexToHash("0xdead"),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "other contract",
			signer:     newSigner(t, aliceKey),
			contract:   testACL,
			handle:     userHandle,
			wantStatus: http.StatusForbidden,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			value, err := fhevm.DecryptData(context.Background(), test.contract, test.handle, srv.URL, test.signer)
			if test.wantStatus != 0 {
				var decErr *fhevm.DecryptionError
				require.ErrorAs(err, &decErr)
				require.False(decErr.Public)
				require.Equal(test.wantStatus, decErr.StatusCode)
				return
			}
			require.NoError(err)
			require.Equal(big.NewInt(test.want), value)
		})
	}
}

func TestUserDecryptWrongChain(t *testing.T) {
	require := require.New(t)
	_, srv := newTestGateway(t)

	// Signed for chain 1, verified against the gateway's chain.
	signer, err := fhevm.NewLocalSignerFromHex(aliceKey, big.NewInt(1))
	require.NoError(err)

	_, err = fhevm.UserDecrypt(context.Background(), signer, testContract, userHandle, srv.URL)
	var decErr *fhevm.DecryptionError
	require.ErrorAs(err, &decErr)
	require.Equal(http.StatusUnauthorized, decErr.StatusCode)
	require.EqualError(err, "Decryption failed: Unauthorized")
}

func TestUserDecryptForgedPublicKey(t *testing.T) {
	require := require.New(t)
	_, srv := newTestGateway(t)
	ctx := context.Background()

	alice := newSigner(t, aliceKey)
	bobKeyMaterial, err := fhevm.GeneratePublicKey(ctx, newSigner(t, bobKey))
	require.NoError(err)
	sig, err := fhevm.CreateEIP712Signature(ctx, alice, testContract, userHandle, bobKeyMaterial)
	require.NoError(err)

	resp := postJSON(t, srv.URL+fhevm.DecryptPath, fhevm.DecryptRequest{
		ContractAddress: testContract,
		Handle:          userHandle,
		Signature:       sig,
		PublicKey:       bobKeyMaterial,
	})
	require.Equal(http.StatusUnauthorized, resp.StatusCode)
	require.Equal("Invalid public key", decodeError(t, resp))
}

func TestPublicDecrypt(t *testing.T) {
	_, srv := newTestGateway(t)

	tests := []struct {
		name       string
		handle     common.Hash
		want       int64
		wantStatus int
		wantErr    string
	}{
		{
			name:   "public handle",
			handle: publicHandle,
			want:   256,
		},
		{
			name:       "private handle",
			handle:     userHandle,
			wantStatus: http.StatusForbidden,
			wantErr:    "Public decryption failed: Forbidden",
		},
		{
			name:       "decrypt failure",
			handle:     brokenHandle,
			wantStatus: http.StatusInternalServerError,
			wantErr:    "Public decryption failed: Internal Server Error",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			value, err := fhevm.DecryptData(context.Background(), testContract, test.handle, srv.URL, nil)
			if test.wantStatus != 0 {
				var decErr *fhevm.DecryptionError
				require.ErrorAs(err, &decErr)
				require.True(decErr.Public)
				require.Equal(test.wantStatus, decErr.StatusCode)
				require.EqualError(err, test.wantErr)
				return
			}
			require.NoError(err)
			require.Equal(big.NewInt(test.want), value)
		})
	}
}

func TestMalformedBodies(t *testing.T) {
	_, srv := newTestGateway(t)

	for _, path := range []string{fhevm.DecryptPath, fhevm.PublicDecryptPath, CiphertextsPath} {
		t.Run(path, func(t *testing.T) {
			require := require.New(t)

			resp, err := http.Post(srv.URL+path, "application/json", bytes.NewBufferString("{"))
			require.NoError(err)
			require.Equal(http.StatusBadRequest, resp.StatusCode)
			require.Equal("Could not decode request body", decodeError(t, resp))
		})
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	_, srv := newTestGateway(t)

	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr string
	}{
		{
			name:    "no handles",
			req:     RegisterRequest{ContractAddress: testContract},
			wantErr: "Must provide at least one handle",
		},
		{
			name: "proof mismatch",
			req: RegisterRequest{
				ContractAddress: testContract,
				Data:            []byte{0xc0},
				Handles:         []common.Hash{userHandle},
				Proof:           []byte{0x01},
			},
			wantErr: "Invalid encrypted input: invalid ciphertext: proof mismatch",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			resp := postJSON(t, srv.URL+CiphertextsPath, test.req)
			require.Equal(http.StatusBadRequest, resp.StatusCode)
			require.Equal(test.wantErr, decodeError(t, resp))
		})
	}
}

func TestKeysHealthAndMetrics(t *testing.T) {
	require := require.New(t)
	_, srv := newTestGateway(t)

	resp, err := http.Get(srv.URL + fhevm.KeysPath)
	require.NoError(err)
	require.Equal(http.StatusOK, resp.StatusCode)
	var keys fhevm.KeysResponse
	require.NoError(json.NewDecoder(resp.Body).Decode(&keys))
	resp.Body.Close()
	require.True(keys.Success)
	require.Equal(uint64(testChainID), keys.Data.ChainID)
	require.Equal(testACL, keys.Data.ACLAddress)
	require.Equal([]byte{0xfe, 0xed}, []byte(keys.Data.PublicKey))

	resp, err = http.Get(srv.URL + HealthPath)
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + MetricsPath)
	require.NoError(err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(err)
	require.Contains(string(body), `gateway_request_count{code="200",route="keys"} 1`)
}

func TestEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("key generation is slow")
	}
	require := require.New(t)
	ctx := context.Background()

	keys, err := fhe.GenerateKeyring(fhevm.InstanceConfig{ChainID: testChainID, ACLAddress: testACL.Hex()})
	require.NoError(err)

	s := NewServer(log.NewNoOpLogger(), keys, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	// The client only ever sees the public key served at /keys.
	cache := fhevm.NewInstanceCache(fhe.NewFactory(log.NewNoOpLogger(), srv.Client()))
	client := fhevm.NewClient(fhevm.Config{
		ChainID:    testChainID,
		GatewayURL: srv.URL,
		Cache:      cache,
	})
	require.NoError(client.Initialize(ctx))

	encrypted, err := client.Encrypt(ctx, big.NewInt(200), fhevm.Uint8)
	require.NoError(err)
	require.Len(encrypted.Handles, 1)

	alice := newSigner(t, aliceKey)
	aliceAddr, err := alice.Address(ctx)
	require.NoError(err)

	resp := postJSON(t, srv.URL+CiphertextsPath, RegisterRequest{
		ContractAddress: testContract,
		Data:            encrypted.Data,
		Handles:         encrypted.Handles,
		Proof:           encrypted.Proof,
		Allowed:         []common.Address{aliceAddr},
	})
	require.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	value, err := client.Decrypt(ctx, fhevm.DecryptParams{
		ContractAddress: testContract,
		Handle:          encrypted.Handles[0],
		Signer:          alice,
	})
	require.NoError(err)
	require.Equal(big.NewInt(200), value)

	_, err = client.PublicDecrypt(ctx, fhevm.PublicDecryptParams{
		ContractAddress: testContract,
		Handle:          encrypted.Handles[0],
	})
	require.EqualError(err, "Public decryption failed: Forbidden")
}

// registrableInput builds an input that passes VerifyInput for fakeKeyring.
// fakeKeyring decrypts it to value.
func registrableInput(t *testing.T, value byte) RegisterRequest {
	t.Helper()
	ciphertext := []byte{value}
	data, err := rlp.EncodeToBytes([][]byte{ciphertext})
	require.NoError(t, err)
	handle := fhe.DeriveHandle(ciphertext, testACL, testChainID, 0, fhevm.Uint8)

	proof := append([]byte{1}, handle.Bytes()...)
	proof = append(proof, crypto.Keccak256(data)...)
	return RegisterRequest{
		ContractAddress: testContract,
		Data:            data,
		Handles:         []common.Hash{handle},
		Proof:           proof,
	}
}

func TestRegisterCannotRebindHandle(t *testing.T) {
	require := require.New(t)
	s, srv := newTestGateway(t)
	ctx := context.Background()

	alice := newSigner(t, aliceKey)
	aliceAddr, err := alice.Address(ctx)
	require.NoError(err)
	bob := newSigner(t, bobKey)
	bobAddr, err := bob.Address(ctx)
	require.NoError(err)

	req := registrableInput(t, 7)
	req.Allowed = []common.Address{aliceAddr}
	resp := postJSON(t, srv.URL+CiphertextsPath, req)
	require.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	stored := s.store.len()

	// Replaying the same input with a wider access list must not widen it.
	req.Allowed = []common.Address{bobAddr}
	req.Public = true
	resp = postJSON(t, srv.URL+CiphertextsPath, req)
	require.Equal(http.StatusConflict, resp.StatusCode)
	require.Equal("Handle already registered", decodeError(t, resp))
	require.Equal(stored, s.store.len())

	handle := req.Handles[0]
	_, err = fhevm.DecryptData(ctx, testContract, handle, srv.URL, bob)
	var decErr *fhevm.DecryptionError
	require.ErrorAs(err, &decErr)
	require.Equal(http.StatusForbidden, decErr.StatusCode)

	_, err = fhevm.DecryptData(ctx, testContract, handle, srv.URL, nil)
	require.ErrorAs(err, &decErr)
	require.Equal(http.StatusForbidden, decErr.StatusCode)

	value, err := fhevm.DecryptData(ctx, testContract, handle, srv.URL, alice)
	require.NoError(err)
	require.Equal(big.NewInt(7), value)

	err = s.Register(testContract, &fhevm.EncryptResult{Data: req.Data, Handles: req.Handles, Proof: req.Proof}, nil, true)
	require.ErrorIs(err, errHandleExists)
}

func TestStoreAddIsAllOrNothing(t *testing.T) {
	require := require.New(t)
	st := newStore()

	fresh := common.HexToHash("0x10")
	require.NoError(st.add([]common.Hash{userHandle}, []*entry{{contract: testContract}}))

	err := st.add([]common.Hash{fresh, userHandle}, []*entry{{public: true}, {public: true}})
	require.ErrorIs(err, errHandleExists)
	require.Equal(1, st.len())
	_, ok := st.get(fresh)
	require.False(ok)

	e, ok := st.get(userHandle)
	require.True(ok)
	require.False(e.public)
}

func TestOversizedBodies(t *testing.T) {
	s, _ := newTestGateway(t)

	tests := []struct {
		path string
		size int
	}{
		{path: fhevm.DecryptPath, size: maxRequestBytes + 1},
		{path: fhevm.PublicDecryptPath, size: maxRequestBytes + 1},
		{path: CiphertextsPath, size: maxRegisterBytes + 1},
	}
	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			require := require.New(t)

			body := `{"data":"0x` + strings.Repeat("a", test.size) + `"}`
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, test.path, strings.NewReader(body)))
			require.Equal(http.StatusRequestEntityTooLarge, rec.Code)
			require.Equal("Request body too large", decodeError(t, rec.Result()))
		})
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var body utils.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error
}
