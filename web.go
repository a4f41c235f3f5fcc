package main

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Philipp15b/go-steam/v3/steamid"
)

// ErrRequestFailed is the sentinel returned once the web retry budget is
// exhausted. Callers treat it as an empty/negative result, never as fatal.
var ErrRequestFailed = errors.New("request failed after retry budget exhausted")

// ErrInvalidSessionToken marks a recoverable confirmation-session failure;
// the current cycle is skipped and the next timer tick tries again.
var ErrInvalidSessionToken = errors.New("confirmation session token invalid")

// WebClient is the contract the automation routines consume for
// authenticated community/web calls.
type WebClient interface {
	// Init establishes the web session after a successful logon
	Init(steamID steamid.SteamId, nonce string) error
	GetInventory(owner steamid.SteamId, appID uint32, contextID uint64, tradableOnly bool) ([]InventoryItem, error)
	SendTradeOffer(partner steamid.SteamId, tradeToken string, items []TradeItem) error
	SendGift(giftID uint64, recipient steamid.SteamId) error
	FetchConfirmations(identitySecret, deviceID string) ([]Confirmation, error)
	AcceptConfirmation(identitySecret, deviceID string, conf Confirmation) error
	GetClanRank(clanID uint64, memberID steamid.SteamId) (int, error)
}

const communityURL = "https://steamcommunity.com"

// SteamWebClient talks to the Steam community endpoints. Every call retries
// up to WebRequestRetryLimit times before surfacing ErrRequestFailed.
type SteamWebClient struct {
	http      *http.Client
	steamID   steamid.SteamId
	sessionID string
}

// NewSteamWebClient creates an uninitialized web client for one account.
// When the account has a proxy slot configured, all web traffic goes through
// that account's egress session.
func NewSteamWebClient(username string, proxyIndex int) (*SteamWebClient, error) {
	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar:     jar,
		Timeout: 30 * time.Second,
	}

	if proxyIndex > 0 {
		dialer, err := GetProxyForAccount(username, proxyIndex)
		if err != nil {
			return nil, err
		}
		if dialer != nil {
			client.Transport = &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					return dialer.Dial(network, addr)
				},
			}
		}
	}
	return &SteamWebClient{http: client}, nil
}

// Init primes cookies and the session id for the logged-on account
func (w *SteamWebClient) Init(steamID steamid.SteamId, nonce string) error {
	w.steamID = steamID

	// Touching the community root assigns the session cookie
	resp, err := w.get(communityURL + "/")
	if err != nil {
		return err
	}
	resp.Body.Close()

	base, _ := url.Parse(communityURL)
	for _, c := range w.http.Jar.Cookies(base) {
		if c.Name == "sessionid" {
			w.sessionID = c.Value
		}
	}
	if w.sessionID == "" {
		return fmt.Errorf("no session cookie assigned")
	}
	return nil
}

type inventoryResponse struct {
	Success int `json:"success"`
	Assets  []struct {
		AppID     uint32 `json:"appid"`
		ContextID string `json:"contextid"`
		AssetID   string `json:"assetid"`
		ClassID   string `json:"classid"`
		Amount    string `json:"amount"`
	} `json:"assets"`
	Descriptions []struct {
		ClassID  string `json:"classid"`
		Tradable int    `json:"tradable"`
	} `json:"descriptions"`
}

// GetInventory lists one inventory context of the given owner
func (w *SteamWebClient) GetInventory(owner steamid.SteamId, appID uint32, contextID uint64, tradableOnly bool) ([]InventoryItem, error) {
	reqURL := fmt.Sprintf("%s/inventory/%d/%d/%d?l=english&count=5000",
		communityURL, uint64(owner), appID, contextID)

	resp, err := w.get(reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var inv inventoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %v", err)
	}
	if inv.Success != 1 {
		return nil, fmt.Errorf("inventory request rejected")
	}

	tradable := make(map[string]bool, len(inv.Descriptions))
	for _, d := range inv.Descriptions {
		tradable[d.ClassID] = d.Tradable == 1
	}

	var items []InventoryItem
	for _, a := range inv.Assets {
		if tradableOnly && !tradable[a.ClassID] {
			continue
		}
		ctx, _ := strconv.ParseUint(a.ContextID, 10, 64)
		asset, _ := strconv.ParseUint(a.AssetID, 10, 64)
		class, _ := strconv.ParseUint(a.ClassID, 10, 64)
		amount, _ := strconv.ParseUint(a.Amount, 10, 32)
		if amount == 0 {
			amount = 1
		}
		items = append(items, InventoryItem{
			AppID:     a.AppID,
			ContextID: ctx,
			AssetID:   asset,
			ClassID:   class,
			Amount:    uint32(amount),
			Tradable:  tradable[a.ClassID],
		})
	}
	return items, nil
}

// SendTradeOffer sends one batch of items to the partner
func (w *SteamWebClient) SendTradeOffer(partner steamid.SteamId, tradeToken string, items []TradeItem) error {
	offer := map[string]interface{}{
		"newversion": true,
		"version":    2,
		"me":         map[string]interface{}{"assets": items, "currency": []int{}, "ready": false},
		"them":       map[string]interface{}{"assets": []TradeItem{}, "currency": []int{}, "ready": false},
	}
	offerJSON, err := json.Marshal(offer)
	if err != nil {
		return err
	}

	params := map[string]string{}
	if tradeToken != "" {
		params["trade_offer_access_token"] = tradeToken
	}
	paramsJSON, _ := json.Marshal(params)

	form := url.Values{
		"sessionid":                 {w.sessionID},
		"serverid":                  {"1"},
		"partner":                   {strconv.FormatUint(uint64(partner), 10)},
		"tradeoffermessage":         {""},
		"json_tradeoffer":           {string(offerJSON)},
		"trade_offer_create_params": {string(paramsJSON)},
	}

	referer := fmt.Sprintf("%s/tradeoffer/new/?partner=%d", communityURL, uint32(partner.GetAccountId()))
	resp, err := w.post(communityURL+"/tradeoffer/new/send", form, referer)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result struct {
		TradeOfferID string `json:"tradeofferid"`
		StrError     string `json:"strError"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to parse trade offer response: %v", err)
	}
	if result.TradeOfferID == "" {
		return fmt.Errorf("trade offer rejected: %s", result.StrError)
	}
	return nil
}

// SendGift forwards one unwrapped gift to the recipient
func (w *SteamWebClient) SendGift(giftID uint64, recipient steamid.SteamId) error {
	form := url.Values{
		"sessionid":              {w.sessionID},
		"steamid_gift_recipient": {strconv.FormatUint(uint64(recipient), 10)},
	}
	resp, err := w.post(fmt.Sprintf("%s/gifts/%d/send", communityURL, giftID), form, communityURL+"/")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

type confirmationListResponse struct {
	Success bool `json:"success"`
	Conf    []struct {
		ID    string `json:"id"`
		Nonce string `json:"nonce"`
		Type  int    `json:"type"`
	} `json:"conf"`
}

// FetchConfirmations lists pending confirmations. Confirmations are fetched
// fresh on every call, never cached.
func (w *SteamWebClient) FetchConfirmations(identitySecret, deviceID string) ([]Confirmation, error) {
	now := time.Now()
	key, err := GenerateConfirmationKey(identitySecret, now, "conf")
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/mobileconf/getlist?%s", communityURL,
		w.confirmationQuery(deviceID, key, now, "conf").Encode())
	resp, err := w.get(reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list confirmationListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to parse confirmation list: %v", err)
	}
	if !list.Success {
		return nil, ErrInvalidSessionToken
	}

	confs := make([]Confirmation, 0, len(list.Conf))
	for _, c := range list.Conf {
		id, _ := strconv.ParseUint(c.ID, 10, 64)
		nonce, _ := strconv.ParseUint(c.Nonce, 10, 64)
		confs = append(confs, Confirmation{
			ID:   id,
			Key:  nonce,
			Type: ConfirmationType(c.Type),
		})
	}
	return confs, nil
}

// AcceptConfirmation acknowledges one pending confirmation
func (w *SteamWebClient) AcceptConfirmation(identitySecret, deviceID string, conf Confirmation) error {
	now := time.Now()
	key, err := GenerateConfirmationKey(identitySecret, now, "allow")
	if err != nil {
		return err
	}

	query := w.confirmationQuery(deviceID, key, now, "allow")
	query.Set("op", "allow")
	query.Set("cid", strconv.FormatUint(conf.ID, 10))
	query.Set("ck", strconv.FormatUint(conf.Key, 10))

	resp, err := w.get(fmt.Sprintf("%s/mobileconf/ajaxop?%s", communityURL, query.Encode()))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to parse confirmation response: %v", err)
	}
	if !result.Success {
		return fmt.Errorf("confirmation %d not accepted", conf.ID)
	}
	return nil
}

func (w *SteamWebClient) confirmationQuery(deviceID, key string, t time.Time, tag string) url.Values {
	return url.Values{
		"p":   {deviceID},
		"a":   {strconv.FormatUint(uint64(w.steamID), 10)},
		"k":   {key},
		"t":   {strconv.FormatInt(t.Unix(), 10)},
		"m":   {"android"},
		"tag": {tag},
	}
}

type memberList struct {
	Members struct {
		SteamIDs []uint64 `xml:"steamID64"`
	} `xml:"members"`
}

// GetClanRank returns the 1-based position of the member in the clan member
// list, or 0 when the member is not listed.
func (w *SteamWebClient) GetClanRank(clanID uint64, memberID steamid.SteamId) (int, error) {
	resp, err := w.get(fmt.Sprintf("%s/gid/%d/memberslistxml?xml=1", communityURL, clanID))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var list memberList
	if err := xml.Unmarshal(body, &list); err != nil {
		return 0, fmt.Errorf("failed to parse member list: %v", err)
	}
	for i, id := range list.Members.SteamIDs {
		if id == uint64(memberID) {
			return i + 1, nil
		}
	}
	return 0, nil
}

// get issues a GET with the bounded retry discipline
func (w *SteamWebClient) get(reqURL string) (*http.Response, error) {
	return w.retry(func() (*http.Response, error) {
		return w.http.Get(reqURL)
	})
}

// post issues a form POST with the bounded retry discipline
func (w *SteamWebClient) post(reqURL string, form url.Values, referer string) (*http.Response, error) {
	return w.retry(func() (*http.Response, error) {
		req, err := http.NewRequest("POST", reqURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if referer != "" {
			req.Header.Set("Referer", referer)
		}
		return w.http.Do(req)
	})
}

// retry runs the request up to WebRequestRetryLimit times; once the budget
// is exhausted it reports ErrRequestFailed so callers can produce a reply
// instead of raising upward.
func (w *SteamWebClient) retry(do func() (*http.Response, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= WebRequestRetryLimit; attempt++ {
		resp, err := do()
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err == nil {
			lastErr = fmt.Errorf("server returned %s", resp.Status)
			resp.Body.Close()
		} else {
			lastErr = err
		}
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	LogWarning("Web request failed after %d tries: %v", WebRequestRetryLimit, lastErr)
	return nil, ErrRequestFailed
}
