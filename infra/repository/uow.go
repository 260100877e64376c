// Package repository wires the GORM-backed repositories behind the
// UnitOfWork contract from pkg/repository.
package repository

import (
	"context"
	"fmt"
	"reflect"

	"github.com/numgate/numgate/infra/repository/account"
	"github.com/numgate/numgate/infra/repository/deposit"
	"github.com/numgate/numgate/infra/repository/purchase"
	"github.com/numgate/numgate/infra/repository/transaction"
	"github.com/numgate/numgate/infra/repository/webhooklog"
	"github.com/numgate/numgate/pkg/repository"
	"gorm.io/gorm"
)

// UoW provides the transaction boundary and repository access in one
// abstraction. Repositories handed out inside Do all share the transaction
// session, so a purchase's debit, ledger entry and lease record commit or
// roll back together.
type UoW struct {
	db           *gorm.DB
	tx           *gorm.DB
	repoRegistry map[reflect.Type]func(*gorm.DB) any
}

// NewUoW creates a UoW for the given *gorm.DB.
func NewUoW(db *gorm.DB) *UoW {
	return &UoW{
		db: db,
		repoRegistry: map[reflect.Type]func(*gorm.DB) any{
			reflect.TypeOf((*repository.AccountRepository)(nil)).Elem():     func(db *gorm.DB) any { return account.New(db) },
			reflect.TypeOf((*repository.TransactionRepository)(nil)).Elem(): func(db *gorm.DB) any { return transaction.New(db) },
			reflect.TypeOf((*repository.PurchaseRepository)(nil)).Elem():    func(db *gorm.DB) any { return purchase.New(db) },
			reflect.TypeOf((*repository.DepositRepository)(nil)).Elem():     func(db *gorm.DB) any { return deposit.New(db) },
			reflect.TypeOf((*repository.WebhookLogRepository)(nil)).Elem():  func(db *gorm.DB) any { return webhooklog.New(db) },
		},
	}
}

// Do runs fn inside a database transaction, providing a UoW bound to it.
func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txnUow := &UoW{db: u.db, tx: tx, repoRegistry: u.repoRegistry}
		return fn(txnUow)
	})
}

// GetRepository resolves a repository bound to the current transaction
// session. Outside Do the repository runs on the root session.
func (u *UoW) GetRepository(repoType reflect.Type) (any, error) {
	constructor, ok := u.repoRegistry[repoType]
	if !ok {
		return nil, fmt.Errorf("unsupported repository type: %v", repoType)
	}
	session := u.tx
	if session == nil {
		session = u.db
	}
	return constructor(session), nil
}
