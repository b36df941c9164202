package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/plateshare/plateshare/internal/browser"
	"github.com/plateshare/plateshare/internal/cache"
	"github.com/plateshare/plateshare/internal/scan"
	"github.com/plateshare/plateshare/pkg/domain"
)

// -- messages --

type rewardsLoadedMsg struct {
	user       *domain.User
	activities []domain.Activity
	nfts       []domain.NFT
	rewards    []domain.RewardEntry
	err        error
}

type rewardsNoticeMsg struct {
	text string
	err  error
}

// -- model --

type rewardsModel struct {
	deps       *Deps
	user       *domain.User
	activities []domain.Activity
	nfts       []domain.NFT
	rewards    []domain.RewardEntry
	cursor     int // over nfts
	loading    bool
	err        string
	notice     string
	banner     *scan.Result
	width      int
	height     int
}

func newRewardsModel(deps *Deps) rewardsModel {
	return rewardsModel{deps: deps, loading: true}
}

func (m rewardsModel) Init() tea.Cmd {
	return m.load()
}

// load reads every dashboard resource through the cache in one command.
// The first error wins; partial data still renders.
func (m rewardsModel) load() tea.Cmd {
	d := m.deps
	return func() tea.Msg {
		ctx := context.Background()
		var msg rewardsLoadedMsg

		user, err := cache.Read(ctx, d.Cache, cache.KeyUser,
			func(ctx context.Context) (*domain.User, error) { return d.API.GetUser(ctx) },
			cache.ReadOptions{RevalidateOnFocus: true})
		msg.user, msg.err = user, err

		acts, err := cache.Read(ctx, d.Cache, cache.KeyUserActivities,
			func(ctx context.Context) ([]domain.Activity, error) { return d.API.UserActivities(ctx) },
			cache.ReadOptions{RevalidateOnFocus: true})
		msg.activities = acts
		if msg.err == nil {
			msg.err = err
		}

		nfts, err := cache.Read(ctx, d.Cache, cache.KeyUserNFTs,
			func(ctx context.Context) ([]domain.NFT, error) { return d.API.UserNFTs(ctx) },
			cache.ReadOptions{RevalidateOnFocus: true})
		msg.nfts = nfts
		if msg.err == nil {
			msg.err = err
		}

		rewards, err := cache.Read(ctx, d.Cache, cache.KeyRewardHistory,
			func(ctx context.Context) ([]domain.RewardEntry, error) { return d.API.RewardHistory(ctx) },
			cache.ReadOptions{})
		msg.rewards = rewards
		if msg.err == nil {
			msg.err = err
		}

		return msg
	}
}

func (m rewardsModel) Update(msg tea.Msg) (rewardsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case showRewardsMsg:
		var res scan.Result
		if ok, err := m.deps.Store.LoadHandoff(handoffScanResult, &res); ok && err == nil {
			m.banner = &res
		}
		return m, nil

	case rewardsLoadedMsg:
		m.loading = false
		m.user = msg.user
		m.activities = msg.activities
		m.nfts = msg.nfts
		m.rewards = msg.rewards
		if msg.err != nil {
			m.err = msg.err.Error()
		} else {
			m.err = ""
		}
		if m.cursor >= len(m.nfts) {
			m.cursor = 0
		}

	case rewardsNoticeMsg:
		if msg.err != nil {
			m.err = msg.err.Error()
		} else {
			m.notice = msg.text
		}

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m rewardsModel) handleKey(msg tea.KeyMsg) (rewardsModel, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if m.cursor < len(m.nfts)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "esc":
		m.banner = nil
		m.notice = ""
	case "c":
		if m.user == nil {
			break
		}
		addr := m.user.WalletAddress
		return m, func() tea.Msg {
			if err := clipboard.WriteAll(addr); err != nil {
				return rewardsNoticeMsg{err: fmt.Errorf("copy address: %w", err)}
			}
			return rewardsNoticeMsg{text: "address copied"}
		}
	case "o":
		if m.cursor >= len(m.nfts) {
			break
		}
		nft := m.nfts[m.cursor]
		ref := nft.ImageURL
		if ref == "" {
			ref = nft.IPFSCid
		}
		if ref == "" {
			m.err = "no link for this reward"
			break
		}
		url := browser.GatewayURL(m.deps.IPFSGateway, ref)
		return m, func() tea.Msg {
			if err := browser.Open(url); err != nil {
				return rewardsNoticeMsg{err: err}
			}
			return rewardsNoticeMsg{text: "opened " + truncStr(url, 48)}
		}
	case "r":
		m.loading = true
		d := m.deps
		return m, tea.Sequence(func() tea.Msg {
			d.Cache.RevalidateAll(context.Background(), //nolint:errcheck
				cache.KeyUser, cache.KeyUserActivities, cache.KeyUserNFTs, cache.KeyRewardHistory)
			return nil
		}, m.load())
	}
	return m, nil
}

func (m rewardsModel) View() string {
	var b strings.Builder

	if m.banner != nil && m.banner.NFT != nil {
		b.WriteString(" " + badgeStyle.Render("new reward") + " " +
			successStyle.Render("token "+m.banner.NFT.NFTTokenID) + "\n\n")
	}

	if m.loading && m.user == nil {
		b.WriteString(" " + dimStyle.Render("loading...") + "\n")
		return b.String()
	}

	if m.user != nil {
		b.WriteString(" " + selectedStyle.Render(m.user.Name) + "  " +
			metaStyle.Render(shortAddr(m.user.WalletAddress)) + "  " +
			dimStyle.Render(string(m.user.Role)) + "\n")
	}

	verified := 0
	for _, a := range m.activities {
		if a.Verified {
			verified++
		}
	}
	var total float64
	for _, r := range m.rewards {
		total += r.Amount
	}
	b.WriteString(" " + metaStyle.Render(fmt.Sprintf("%d activities · %d verified · %d rewards · %.2f tokens",
		len(m.activities), verified, len(m.nfts), total)) + "\n\n")

	if len(m.nfts) == 0 {
		b.WriteString(" " + dimStyle.Render("no rewards yet — scan a code at an event") + "\n")
	}
	for i, nft := range m.nfts {
		cursor := " "
		if i == m.cursor {
			cursor = selectedStyle.Render("▸")
		}
		name := nft.Name
		if name == "" {
			name = "reward " + nft.NFTTokenID
		}
		row := fmt.Sprintf(" %s %s", cursor, truncStr(name, 32))
		if !nft.MintedAt.IsZero() {
			row += "  " + dimStyle.Render(nft.MintedAt.Format("Jan 2"))
		}
		b.WriteString(row + "\n")
	}

	if len(m.rewards) > 0 {
		b.WriteString("\n " + dimStyle.Render("recent rewards") + "\n")
		shown := m.rewards
		if len(shown) > 5 {
			shown = shown[:5]
		}
		for _, r := range shown {
			line := fmt.Sprintf(" %s %.2f", metaStyle.Render("+"), r.Amount)
			if r.TxHash != "" {
				line += "  " + dimStyle.Render(shortAddr(r.TxHash))
			}
			b.WriteString(line + "\n")
		}
	}

	if m.notice != "" {
		b.WriteString("\n " + successStyle.Render(m.notice) + "\n")
	}
	if m.err != "" {
		b.WriteString("\n " + warnStyle.Render(m.err) + "\n")
	}

	b.WriteString("\n " + dimStyle.Render("j/k nav · o open · c copy address · r refresh") + "\n")
	return b.String()
}
