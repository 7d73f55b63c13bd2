package integration

import (
	"strings"
	"time"

	"github.com/udisondev/oxo/internal/protocol"
	"github.com/udisondev/oxo/internal/testutil"
)

// users разбирает users listing на строки "имя\tрейтинг".
func users(c *testutil.Client) []string {
	listing := c.Users()
	if listing == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(listing, "\n"), "\n")
}

// TestLoginAndListing: логин под уникальным именем, отказ занятого имени,
// users listing со стартовым рейтингом.
func (s *MatchServerSuite) TestLoginAndListing() {
	vera := testutil.Dial(s.T(), s.addr)
	pavel := testutil.Dial(s.T(), s.addr)
	vera.Login("vera")
	pavel.Login("pavel")

	intruder := testutil.Dial(s.T(), s.addr)
	intruder.Send(protocol.Header{Type: protocol.TypeLogin}, []byte("vera"))
	intruder.RecvType(protocol.TypeNack)
	intruder.Login("olga")

	s.ElementsMatch(
		[]string{"vera\t1500", "pavel\t1500", "olga\t1500"},
		users(vera))
}

// TestInviteDecline: приглашение доходит с ролью и именем источника,
// отказ возвращается под id источника, после отказа ссылка мертва.
func (s *MatchServerSuite) TestInviteDecline() {
	lena := testutil.Dial(s.T(), s.addr)
	igor := testutil.Dial(s.T(), s.addr)
	lena.Login("lena")
	igor.Login("igor")

	lenaID := lena.Invite("igor", protocol.RoleSecond)
	hdr, payload := igor.RecvType(protocol.TypeInvited)
	s.Equal(protocol.RoleSecond, hdr.Role)
	s.Equal("lena", string(payload))
	igorID := hdr.ID

	igor.Decline(igorID)
	hdr, _ = lena.RecvType(protocol.TypeDeclined)
	s.Equal(lenaID, hdr.ID)

	igor.Send(protocol.Header{Type: protocol.TypeDecline, ID: igorID}, nil)
	igor.RecvType(protocol.TypeNack)
}

// TestInviteRevoke: отзыв доходит до цели под её id.
func (s *MatchServerSuite) TestInviteRevoke() {
	roma := testutil.Dial(s.T(), s.addr)
	dasha := testutil.Dial(s.T(), s.addr)
	roma.Login("roma")
	dasha.Login("dasha")

	romaID := roma.Invite("dasha", protocol.RoleFirst)
	hdr, _ := dasha.RecvType(protocol.TypeInvited)
	dashaID := hdr.ID

	roma.Revoke(romaID)
	hdr, _ = dasha.RecvType(protocol.TypeRevoked)
	s.Equal(dashaID, hdr.ID)

	dasha.Send(protocol.Header{Type: protocol.TypeAccept, ID: dashaID}, nil)
	dasha.RecvType(protocol.TypeNack)
}

// TestFullGame: полная партия до победы крестиков с проверкой каждой
// отрисовки доски и итоговых рейтингов.
func (s *MatchServerSuite) TestFullGame() {
	anna := testutil.Dial(s.T(), s.addr)
	boris := testutil.Dial(s.T(), s.addr)
	anna.Login("anna")
	boris.Login("boris")

	annaID := anna.Invite("boris", protocol.RoleFirst) // boris играет X
	hdr, _ := boris.RecvType(protocol.TypeInvited)
	s.Equal(protocol.RoleFirst, hdr.Role)
	borisID := hdr.ID

	board := boris.Accept(borisID)
	s.Equal(" | | \n-----\n | | \n-----\n | | \nIt's X's turn\n", board)

	hdr, payload := anna.RecvType(protocol.TypeAccepted)
	s.Equal(annaID, hdr.ID)
	s.Empty(payload, "доска уходит тому, кто ходит первым")

	// X берёт антидиагональ 3-5-7.
	boris.Move(borisID, 5)
	_, payload = anna.RecvType(protocol.TypeMoved)
	s.Equal(" | | \n-----\n |X| \n-----\n | | \nIt's O's turn\n", string(payload))

	anna.Move(annaID, 1)
	_, payload = boris.RecvType(protocol.TypeMoved)
	s.Equal("O| | \n-----\n |X| \n-----\n | | \nIt's X's turn\n", string(payload))

	boris.Move(borisID, 3)
	_, payload = anna.RecvType(protocol.TypeMoved)
	s.Equal("O| |X\n-----\n |X| \n-----\n | | \nIt's O's turn\n", string(payload))

	anna.Move(annaID, 9)
	_, payload = boris.RecvType(protocol.TypeMoved)
	s.Equal("O| |X\n-----\n |X| \n-----\n | |O\nIt's X's turn\n", string(payload))

	winner := boris.MoveEnding(borisID, 7)
	s.Equal(protocol.RoleFirst, winner)

	_, payload = anna.RecvType(protocol.TypeMoved)
	s.Equal("O| |X\n-----\n |X| \n-----\nX| |O\nIt's O's turn\n", string(payload))
	hdr, _ = anna.RecvType(protocol.TypeEnded)
	s.Equal(annaID, hdr.ID)
	s.Equal(protocol.RoleFirst, hdr.Role)

	s.ElementsMatch([]string{"boris\t1516", "anna\t1484"}, users(boris))
}

// TestDrawGame: ничья не двигает рейтинги.
func (s *MatchServerSuite) TestDrawGame() {
	sveta := testutil.Dial(s.T(), s.addr)
	maks := testutil.Dial(s.T(), s.addr)
	sveta.Login("sveta")
	maks.Login("maks")

	svetaID := sveta.Invite("maks", protocol.RoleFirst)
	hdr, _ := maks.RecvType(protocol.TypeInvited)
	maksID := hdr.ID
	maks.Accept(maksID)
	sveta.RecvType(protocol.TypeAccepted)

	// X: 1 2 6 7 9, O: 3 4 5 8. Полная доска без линии.
	moves := []struct {
		mover, watcher *testutil.Client
		id             uint8
		square         int
	}{
		{maks, sveta, maksID, 1},
		{sveta, maks, svetaID, 3},
		{maks, sveta, maksID, 2},
		{sveta, maks, svetaID, 4},
		{maks, sveta, maksID, 6},
		{sveta, maks, svetaID, 5},
		{maks, sveta, maksID, 7},
		{sveta, maks, svetaID, 8},
	}
	for _, m := range moves {
		m.mover.Move(m.id, m.square)
		m.watcher.RecvType(protocol.TypeMoved)
	}

	winner := maks.MoveEnding(maksID, 9)
	s.Equal(protocol.RoleNone, winner, "ничья идёт без победителя")

	_, payload := sveta.RecvType(protocol.TypeMoved)
	s.Equal("X|X|O\n-----\nO|O|X\n-----\nX|O|X\nIt's O's turn\n", string(payload))
	hdr, _ = sveta.RecvType(protocol.TypeEnded)
	s.Equal(protocol.RoleNone, hdr.Role)

	s.ElementsMatch([]string{"sveta\t1500", "maks\t1500"}, users(sveta))
}

// TestResign: сдача отдаёт победу сопернику и двигает рейтинги.
func (s *MatchServerSuite) TestResign() {
	zhenya := testutil.Dial(s.T(), s.addr)
	kolya := testutil.Dial(s.T(), s.addr)
	zhenya.Login("zhenya")
	kolya.Login("kolya")

	zhenyaID := zhenya.Invite("kolya", protocol.RoleFirst)
	hdr, _ := kolya.RecvType(protocol.TypeInvited)
	kolyaID := hdr.ID
	kolya.Accept(kolyaID)
	zhenya.RecvType(protocol.TypeAccepted)

	kolya.Move(kolyaID, 5)
	zhenya.RecvType(protocol.TypeMoved)

	winner := zhenya.Resign(zhenyaID)
	s.Equal(protocol.RoleFirst, winner)

	hdr, _ = kolya.RecvType(protocol.TypeResigned)
	s.Equal(kolyaID, hdr.ID)
	hdr, _ = kolya.RecvType(protocol.TypeEnded)
	s.Equal(protocol.RoleFirst, hdr.Role)

	s.ElementsMatch([]string{"kolya\t1516", "zhenya\t1484"}, users(kolya))
}

// TestDisconnectMidGame: обрыв соединения равен сдаче, рейтинг уцелевшего
// растёт, а имя пропавшего уходит из listing.
func (s *MatchServerSuite) TestDisconnectMidGame() {
	fedor := testutil.Dial(s.T(), s.addr)
	galya := testutil.Dial(s.T(), s.addr)
	fedor.Login("fedor")
	galya.Login("galya")

	fedor.Invite("galya", protocol.RoleFirst)
	hdr, _ := galya.RecvType(protocol.TypeInvited)
	galya.Accept(hdr.ID)
	fedor.RecvType(protocol.TypeAccepted)

	s.Require().NoError(fedor.Close())

	galya.RecvType(protocol.TypeResigned)
	hdr, _ = galya.RecvType(protocol.TypeEnded)
	s.Equal(protocol.RoleFirst, hdr.Role, "пропавший играл O и проиграл")

	testutil.WaitForCleanup(s.T(), func() bool {
		return s.srv.Registry().Lookup("fedor") == nil
	}, 5*time.Second)
	s.ElementsMatch([]string{"galya\t1516"}, users(galya))
}
