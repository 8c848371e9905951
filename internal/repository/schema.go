package repository

import (
    "context"
    "database/sql"
)

// schema is the full DDL, one statement per entry.  The uniq_settlement
// index works through a generated key column: settlement types produce a
// non-NULL key and collide, everything else stays NULL and is ignored by
// the unique index.  That index is what makes double-settling fail
// closed even if two processes race past the row lock.
var schema = []string{
    `CREATE TABLE IF NOT EXISTS accounts (
        id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
        name VARCHAR(191) NOT NULL,
        status ENUM('open','closed') NOT NULL DEFAULT 'open',
        balance DECIMAL(12,2) NOT NULL DEFAULT 0,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
        PRIMARY KEY (id),
        UNIQUE KEY uniq_account_name (name)
    ) ENGINE=InnoDB`,

    `CREATE TABLE IF NOT EXISTS members (
        id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
        first_name VARCHAR(100) NOT NULL,
        last_name VARCHAR(100) NOT NULL,
        email VARCHAR(191) NOT NULL,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (id),
        UNIQUE KEY uniq_member_email (email)
    ) ENGINE=InnoDB`,

    `CREATE TABLE IF NOT EXISTS events (
        id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
        name VARCHAR(191) NOT NULL,
        fee DECIMAL(12,2) NOT NULL DEFAULT 0,
        deposit DECIMAL(12,2) NOT NULL DEFAULT 0,
        fields_json TEXT NULL,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (id)
    ) ENGINE=InnoDB`,

    `CREATE TABLE IF NOT EXISTS service_items (
        id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
        event_id BIGINT UNSIGNED NOT NULL,
        name VARCHAR(191) NOT NULL,
        price DECIMAL(12,2) NOT NULL DEFAULT 0,
        PRIMARY KEY (id),
        KEY idx_item_event (event_id),
        CONSTRAINT fk_item_event FOREIGN KEY (event_id) REFERENCES events(id)
    ) ENGINE=InnoDB`,

    `CREATE TABLE IF NOT EXISTS enrollment_lists (
        id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
        event_id BIGINT UNSIGNED NOT NULL,
        name VARCHAR(191) NOT NULL,
        capacity INT UNSIGNED NOT NULL DEFAULT 0,
        role ENUM('main','waiting','intake','custom') NOT NULL,
        role_key VARCHAR(64) AS (
            CASE WHEN role IN ('main','waiting') THEN CONCAT(event_id, ':', role) END
        ) STORED,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (id),
        UNIQUE KEY uniq_list_role (role_key),
        KEY idx_list_event (event_id),
        CONSTRAINT fk_list_event FOREIGN KEY (event_id) REFERENCES events(id)
    ) ENGINE=InnoDB`,

    `CREATE TABLE IF NOT EXISTS subscriptions (
        id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
        event_id BIGINT UNSIGNED NOT NULL,
        member_id BIGINT UNSIGNED NULL,
        external_name VARCHAR(191) NULL,
        list_id BIGINT UNSIGNED NOT NULL,
        checkout_id VARCHAR(191) NULL,
        gateway_tx_id VARCHAR(191) NULL,
        payment_failed TINYINT(1) NOT NULL DEFAULT 0,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
        PRIMARY KEY (id),
        UNIQUE KEY uniq_sub_member (event_id, member_id),
        UNIQUE KEY uniq_sub_external (event_id, external_name),
        KEY idx_sub_checkout (checkout_id),
        KEY idx_sub_list (list_id),
        CONSTRAINT fk_sub_event FOREIGN KEY (event_id) REFERENCES events(id),
        CONSTRAINT fk_sub_list FOREIGN KEY (list_id) REFERENCES enrollment_lists(id)
    ) ENGINE=InnoDB`,

    `CREATE TABLE IF NOT EXISTS purchases (
        subscription_id BIGINT UNSIGNED NOT NULL,
        item_id BIGINT UNSIGNED NOT NULL,
        PRIMARY KEY (subscription_id, item_id),
        CONSTRAINT fk_purchase_sub FOREIGN KEY (subscription_id) REFERENCES subscriptions(id) ON DELETE CASCADE,
        CONSTRAINT fk_purchase_item FOREIGN KEY (item_id) REFERENCES service_items(id)
    ) ENGINE=InnoDB`,

    `CREATE TABLE IF NOT EXISTS transactions (
        id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
        type VARCHAR(32) NOT NULL,
        account_id BIGINT UNSIGNED NOT NULL,
        amount DECIMAL(12,2) NOT NULL,
        subscription_id BIGINT UNSIGNED NULL,
        card_id BIGINT UNSIGNED NULL,
        line_item_id BIGINT UNSIGNED NULL,
        executor VARCHAR(191) NULL,
        description VARCHAR(500) NOT NULL DEFAULT '',
        settle_key VARCHAR(96) AS (
            CASE
                WHEN type IN ('subscription_fee','deposit_hold') THEN CONCAT(type, ':', subscription_id)
                WHEN type = 'service_charge' THEN CONCAT(type, ':', subscription_id, ':', line_item_id)
            END
        ) STORED,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
        PRIMARY KEY (id),
        UNIQUE KEY uniq_settlement (settle_key),
        KEY idx_tx_account (account_id),
        KEY idx_tx_subscription (subscription_id),
        CONSTRAINT fk_tx_account FOREIGN KEY (account_id) REFERENCES accounts(id)
    ) ENGINE=InnoDB`,
}

// InitSchema creates all tables if they do not exist yet.  It is invoked
// once at startup; production deployments that manage migrations
// externally can skip it.
func InitSchema(ctx context.Context, db *sql.DB) error {
    for _, stmt := range schema {
        if _, err := db.ExecContext(ctx, stmt); err != nil {
            return err
        }
    }
    return nil
}
