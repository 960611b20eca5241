package postgres

// SQL for the canonical tables, the append-only audit log, and the
// per-partition sequence rows. The audit append and the canonical delta
// always travel in one transaction (see CommitTransition).

const (
	// queryAllocateID hands out canonical identifiers from a single
	// global sequence. Identifiers are unique and never reused; gaps
	// are fine, so one sequence serves every entity kind.
	queryAllocateID = `SELECT nextval('entity_ids')`

	queryListBidYears = `
		SELECT bid_year_id, year, start_date, num_pay_periods, active,
		       expected_area_count, lifecycle_stage
		FROM bid_years
		ORDER BY year ASC
	`

	queryBidYearByLabel = `
		SELECT bid_year_id, year, start_date, num_pay_periods, active,
		       expected_area_count, lifecycle_stage
		FROM bid_years
		WHERE year = $1
	`

	queryHeadSeq = `
		SELECT head_seq FROM partition_sequences WHERE partition = $1
	`

	queryAreasByYear = `
		SELECT area_id, bid_year_id, area_code, area_name, system_area,
		       expected_user_count
		FROM areas
		WHERE bid_year_id = $1
		ORDER BY area_id ASC
	`

	queryUsersByYear = `
		SELECT user_id, bid_year_id, area_id, initials, name, user_type,
		       crew, cumulative_bu_date, bu_date, eod_date, scd_date,
		       lottery, excluded_from_bidding, excluded_from_leave_calc,
		       no_bid_reviewed, bid_order, window_start, window_end
		FROM users
		WHERE bid_year_id = $1
		ORDER BY user_id ASC
	`

	queryRoundsByYear = `
		SELECT round_id, bid_year_id, area_id, round_number, start_date,
		       bidders_per_day, window_start_secs, window_end_secs, timezone
		FROM rounds
		WHERE bid_year_id = $1
		ORDER BY round_id ASC
	`

	// queryCreatePartition registers the sequence row for a new bid
	// year. ON CONFLICT DO NOTHING turns a duplicate registration into
	// zero affected rows, which the caller maps to a conflict.
	queryCreatePartition = `
		INSERT INTO partition_sequences (partition, head_seq)
		VALUES ($1, 0)
		ON CONFLICT (partition) DO NOTHING
	`

	// queryAdvanceHead claims the next gapless sequence number iff the
	// head is still where the caller observed it. Zero rows means a
	// concurrent transition won the race (or the partition is unknown).
	queryAdvanceHead = `
		UPDATE partition_sequences
		SET head_seq = head_seq + 1
		WHERE partition = $1 AND head_seq = $2
		RETURNING head_seq
	`

	queryInsertEvent = `
		INSERT INTO audit_events (
			partition, seq, actor_id, actor_type, cause_id,
			cause_description, action_name, action_details,
			entity_kind, entity_id, before_state, after_state, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	queryReadEvents = `
		SELECT partition, seq, actor_id, actor_type, cause_id,
		       cause_description, action_name, action_details,
		       entity_kind, entity_id, before_state, after_state, recorded_at
		FROM audit_events
		WHERE partition = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT NULLIF($3, 0)
	`

	queryUpsertBidYear = `
		INSERT INTO bid_years (
			bid_year_id, year, start_date, num_pay_periods, active,
			expected_area_count, lifecycle_stage
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bid_year_id) DO UPDATE SET
			start_date = EXCLUDED.start_date,
			num_pay_periods = EXCLUDED.num_pay_periods,
			active = EXCLUDED.active,
			expected_area_count = EXCLUDED.expected_area_count,
			lifecycle_stage = EXCLUDED.lifecycle_stage
	`

	queryUpsertArea = `
		INSERT INTO areas (
			area_id, bid_year_id, area_code, area_name, system_area,
			expected_user_count
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (area_id) DO UPDATE SET
			area_code = EXCLUDED.area_code,
			area_name = EXCLUDED.area_name,
			system_area = EXCLUDED.system_area,
			expected_user_count = EXCLUDED.expected_user_count
	`

	queryUpsertUser = `
		INSERT INTO users (
			user_id, bid_year_id, area_id, initials, name, user_type,
			crew, cumulative_bu_date, bu_date, eod_date, scd_date,
			lottery, excluded_from_bidding, excluded_from_leave_calc,
			no_bid_reviewed, bid_order, window_start, window_end
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18)
		ON CONFLICT (user_id) DO UPDATE SET
			area_id = EXCLUDED.area_id,
			initials = EXCLUDED.initials,
			name = EXCLUDED.name,
			user_type = EXCLUDED.user_type,
			crew = EXCLUDED.crew,
			cumulative_bu_date = EXCLUDED.cumulative_bu_date,
			bu_date = EXCLUDED.bu_date,
			eod_date = EXCLUDED.eod_date,
			scd_date = EXCLUDED.scd_date,
			lottery = EXCLUDED.lottery,
			excluded_from_bidding = EXCLUDED.excluded_from_bidding,
			excluded_from_leave_calc = EXCLUDED.excluded_from_leave_calc,
			no_bid_reviewed = EXCLUDED.no_bid_reviewed,
			bid_order = EXCLUDED.bid_order,
			window_start = EXCLUDED.window_start,
			window_end = EXCLUDED.window_end
	`

	queryUpsertRound = `
		INSERT INTO rounds (
			round_id, bid_year_id, area_id, round_number, start_date,
			bidders_per_day, window_start_secs, window_end_secs, timezone
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (round_id) DO UPDATE SET
			start_date = EXCLUDED.start_date,
			bidders_per_day = EXCLUDED.bidders_per_day,
			window_start_secs = EXCLUDED.window_start_secs,
			window_end_secs = EXCLUDED.window_end_secs,
			timezone = EXCLUDED.timezone
	`

	queryDeleteAreasByYear  = `DELETE FROM areas WHERE bid_year_id = $1`
	queryDeleteUsersByYear  = `DELETE FROM users WHERE bid_year_id = $1`
	queryDeleteRoundsByYear = `DELETE FROM rounds WHERE bid_year_id = $1`

	querySaveSnapshot = `
		INSERT INTO state_snapshots (partition, seq, state, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (partition, seq) DO UPDATE SET
			state = EXCLUDED.state,
			created_at = EXCLUDED.created_at
	`

	queryNearestSnapshot = `
		SELECT partition, seq, state, created_at
		FROM state_snapshots
		WHERE partition = $1 AND ($2 <= 0 OR seq <= $2)
		ORDER BY seq DESC
		LIMIT 1
	`
)
