// internal/game/processor.go
package game

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/tycoon/internal/board"
	"github.com/jason-s-yu/tycoon/internal/models"
)

const maxChatLength = 500

// processor applies validated actions to a room's state. It holds no state of
// its own and is only invoked from the room goroutine.
type processor struct {
	board board.Board
	dice  Dice
	rules HouseRules
}

// process validates and executes one action for actor. On rejection the state is untouched.
func (pr processor) process(st *roomState, actor uuid.UUID, action models.GameAction) (ActionOutcome, *Rejection) {
	out := ActionOutcome{Actor: actor}

	p, ok := st.players[actor]
	if !ok {
		return out, reject(NotInRoom, "client %s is not a member", actor)
	}
	if p.Bankrupt {
		return out, reject(NotInRoom, "client %s is bankrupt", actor)
	}
	if st.state != StatePlaying {
		return out, reject(GameNotStarted, "room is %s", st.state)
	}
	if action.ActionType.ConsumesTurn() && st.turnHolder() != actor {
		return out, reject(NotYourTurn, "it is %s's turn", st.players[st.turnHolder()].Name)
	}

	switch action.ActionType {
	case models.ActionRoll:
		if p.HasRolled {
			return out, reject(AlreadyRolled, "already rolled this turn")
		}
		pr.roll(st, p, &out)
	case models.ActionBuy:
		if rej := pr.buy(st, p, &out); rej != nil {
			return out, rej
		}
	case models.ActionEndTurn:
		st.advanceTurn()
		out.Kind = EventTurnEnded
		out.note(EventTurnEnded, actor)
		out.describe("%s ended their turn; %s is up.", p.Name, st.players[st.turnHolder()].Name)
	case models.ActionChat:
		msg, _ := action.Payload["msg"].(string)
		msg = strings.TrimSpace(msg)
		if msg == "" {
			return out, reject(ProtocolError, "chat requires a non-empty msg")
		}
		msg = truncateUTF8(msg, maxChatLength)
		out.Kind = EventChat
		out.describe("%s: %s", p.Name, msg)
	default:
		return out, reject(ProtocolError, "unknown action %q", action.ActionType)
	}

	out.Description = strings.Join(out.lines, " ")
	return out, nil
}

func (pr processor) roll(st *roomState, p *PlayerState, out *ActionOutcome) {
	d1, d2 := pr.dice.Roll()
	sum := d1 + d2
	doubles := d1 == d2
	out.Dice = []int{d1, d2}
	out.Kind = EventPlayerMoved
	p.HasRolled = true
	out.describe("%s rolled %d and %d.", p.Name, d1, d2)

	if p.InJail {
		pr.rollFromJail(st, p, sum, doubles, out)
		return
	}

	if doubles {
		p.Doubles++
		if p.Doubles >= pr.rules.MaxDoubles {
			p.Doubles = 0
			out.Kind = EventSentToJail
			pr.sendToJail(p, out)
			out.describe("Too many doubles in a row.")
			st.advanceTurn()
			return
		}
	} else {
		p.Doubles = 0
	}

	pr.move(st, p, sum, out)

	if doubles && !p.InJail && !p.Bankrupt && st.state == StatePlaying {
		p.HasRolled = false
		out.describe("%s rolled doubles and may roll again.", p.Name)
	}
}

func (pr processor) rollFromJail(st *roomState, p *PlayerState, sum int, doubles bool, out *ActionOutcome) {
	if doubles {
		p.InJail = false
		p.JailTurns = 0
		p.Doubles = 0
		out.note(EventLeftJail, p.ID)
		out.describe("%s rolled doubles and left jail.", p.Name)
		pr.move(st, p, sum, out)
		return
	}

	p.JailTurns++
	if p.JailTurns < pr.rules.JailMaxTurns {
		out.Kind = EventStayedInJail
		out.note(EventStayedInJail, p.ID)
		out.describe("%s stays in jail.", p.Name)
		return
	}

	p.InJail = false
	p.JailTurns = 0
	out.note(EventPaidFine, p.ID)
	out.describe("%s paid %d to leave jail.", p.Name, pr.rules.JailFine)
	if pr.pay(st, p, uuid.Nil, pr.rules.JailFine, out) {
		return
	}
	pr.move(st, p, sum, out)
}

// move advances p by steps, crediting the pass-start bonus on wraparound, then resolves the landed tile.
func (pr processor) move(st *roomState, p *PlayerState, steps int, out *ActionOutcome) {
	size := pr.board.Size()
	from := p.Position
	p.Position = (from + steps) % size
	out.note(EventPlayerMoved, p.ID)
	if p.Position < from {
		p.Balance += pr.rules.PassStartBonus
		out.note(EventPassedStart, p.ID)
		out.describe("%s passed start and collected %d.", p.Name, pr.rules.PassStartBonus)
	}
	pr.resolveTile(st, p, steps, out)
}

func (pr processor) resolveTile(st *roomState, p *PlayerState, diceSum int, out *ActionOutcome) {
	t := pr.board.Tile(p.Position)
	out.describe("%s landed on %s.", p.Name, t.Name)

	switch {
	case t.Purchasable():
		owner, owned := st.owners[p.Position]
		if !owned {
			out.Kind = EventPurchasable
			out.note(EventPurchasable)
			out.describe("%s is for sale at %d.", t.Name, t.Price)
			return
		}
		if owner == p.ID {
			return
		}
		rent := board.ComputeRent(t, board.RentContext{
			OwnedInGroup: st.ownedInGroup(owner, t.Group, pr.board),
			GroupSize:    pr.board.GroupSize(t.Group),
			DiceSum:      diceSum,
		})
		out.Kind = EventPayRent
		out.note(EventPayRent, p.ID, owner)
		out.describe("%s owes %s %d in rent.", p.Name, st.players[owner].Name, rent)
		pr.pay(st, p, owner, rent, out)
	case t.Kind == board.KindTax:
		amount := board.TaxAmount(t)
		out.Kind = EventPayTax
		out.note(EventPayTax, p.ID)
		out.describe("%s owes %d in tax.", p.Name, amount)
		pr.pay(st, p, uuid.Nil, amount, out)
	case t.Kind == board.KindGoToJail:
		out.Kind = EventSentToJail
		pr.sendToJail(p, out)
	}
}

// pay moves amount from p to creditor, or to the bank when creditor is uuid.Nil.
// A debtor who cannot cover the amount hands over everything and goes bankrupt; pay then returns true.
func (pr processor) pay(st *roomState, p *PlayerState, creditor uuid.UUID, amount int, out *ActionOutcome) bool {
	if amount <= 0 {
		return false
	}
	var to *PlayerState
	if creditor != uuid.Nil {
		to = st.players[creditor]
	}

	paid := amount
	if p.Balance < amount {
		paid = p.Balance
	}
	p.Balance -= paid
	if to != nil {
		to.Balance += paid
	}
	if paid == amount {
		return false
	}
	pr.bankrupt(st, p, out)
	return true
}

func (pr processor) bankrupt(st *roomState, p *PlayerState, out *ActionOutcome) {
	p.Bankrupt = true
	p.InJail = false
	p.Doubles = 0
	st.releaseProperties(p.ID)
	out.note(EventBankrupt, p.ID)
	out.describe("%s is bankrupt.", p.Name)

	if st.activeCount() <= 1 {
		st.endGame(st.lastActive())
		out.note(EventGameEnded)
		if w, ok := st.players[st.winner]; ok {
			out.describe("%s wins.", w.Name)
		}
		return
	}
	if st.turnHolder() == p.ID {
		st.advanceTurn()
	}
}

func (pr processor) sendToJail(p *PlayerState, out *ActionOutcome) {
	p.Position = pr.board.JailPosition()
	p.InJail = true
	p.JailTurns = 0
	p.Doubles = 0
	out.note(EventSentToJail, p.ID)
	out.describe("%s was sent to jail.", p.Name)
}

func (pr processor) buy(st *roomState, p *PlayerState, out *ActionOutcome) *Rejection {
	t := pr.board.Tile(p.Position)
	if !t.Purchasable() {
		return reject(TileNotPurchasable, "%s cannot be bought", t.Name)
	}
	if owner, owned := st.owners[p.Position]; owned {
		return reject(TileNotPurchasable, "%s is already owned by %s", t.Name, st.players[owner].Name)
	}
	if p.Balance < t.Price {
		return reject(InsufficientFunds, "%s costs %d, balance is %d", t.Name, t.Price, p.Balance)
	}
	p.Balance -= t.Price
	st.owners[p.Position] = p.ID
	p.Owned[p.Position] = struct{}{}
	out.Kind = EventPropertyBought
	out.note(EventPropertyBought, p.ID)
	out.describe("%s bought %s for %d.", p.Name, t.Name, t.Price)
	return nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
