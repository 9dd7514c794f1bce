package sqlinline

const QCreditReserve = `--sql 8f00cd5d-c74f-45da-a1ef-cae842925c59
with held as (
    update credit_accounts
    set reserved = reserved + $3::bigint,
        updated_at = now()
    where user_id = $2::text
      and balance - reserved >= $3::bigint
    returning user_id, balance, reserved, lifetime_granted, notified_level, updated_at
),
recorded as (
    insert into credit_reservations (id, user_id, amount, kind, state, created_at)
    select $1::uuid, held.user_id, $3::bigint, $4::text, 'reserved', now()
    from held
    returning id
)
select user_id, balance, reserved, lifetime_granted, notified_level, updated_at, true
from held
union all
select user_id, balance, reserved, lifetime_granted, notified_level, updated_at, false
from credit_accounts
where user_id = $2::text
  and not exists (select 1 from held);
`

const QCreditConfirm = `--sql b9dd1b3c-a9be-4e96-9dc5-aa7bf5885e4f
with resolved as (
    update credit_reservations
    set state = 'confirmed',
        resolved_at = now()
    where id = $1::uuid
      and state = 'reserved'
    returning id, user_id, amount, kind, state, created_at, resolved_at
),
debited as (
    update credit_accounts a
    set reserved = a.reserved - resolved.amount,
        balance = a.balance - resolved.amount,
        updated_at = now()
    from resolved
    where a.user_id = resolved.user_id
    returning a.user_id, a.balance, a.reserved, a.lifetime_granted, a.notified_level, a.updated_at
)
select r.id::text, r.user_id, r.amount, r.kind, r.state, r.created_at, r.resolved_at,
       d.balance, d.reserved, d.lifetime_granted, d.notified_level, d.updated_at, true
from resolved r
join debited d on d.user_id = r.user_id
union all
select r.id::text, r.user_id, r.amount, r.kind, r.state, r.created_at, r.resolved_at,
       a.balance, a.reserved, a.lifetime_granted, a.notified_level, a.updated_at, false
from credit_reservations r
join credit_accounts a on a.user_id = r.user_id
where r.id = $1::uuid
  and not exists (select 1 from resolved);
`

const QCreditRefund = `--sql 89d2080c-ff5e-40b7-a915-16a28f5e7cd7
with resolved as (
    update credit_reservations
    set state = 'refunded',
        resolved_at = now()
    where id = $1::uuid
      and state = 'reserved'
    returning id, user_id, amount, kind, state, created_at, resolved_at
),
released as (
    update credit_accounts a
    set reserved = a.reserved - resolved.amount,
        updated_at = now()
    from resolved
    where a.user_id = resolved.user_id
    returning a.user_id, a.balance, a.reserved, a.lifetime_granted, a.notified_level, a.updated_at
)
select r.id::text, r.user_id, r.amount, r.kind, r.state, r.created_at, r.resolved_at,
       d.balance, d.reserved, d.lifetime_granted, d.notified_level, d.updated_at, true
from resolved r
join released d on d.user_id = r.user_id
union all
select r.id::text, r.user_id, r.amount, r.kind, r.state, r.created_at, r.resolved_at,
       a.balance, a.reserved, a.lifetime_granted, a.notified_level, a.updated_at, false
from credit_reservations r
join credit_accounts a on a.user_id = r.user_id
where r.id = $1::uuid
  and not exists (select 1 from resolved);
`

const QCreditAccount = `--sql dadf9830-e4d4-493a-a595-7888588270ea
select user_id, balance, reserved, lifetime_granted, notified_level, updated_at
from credit_accounts
where user_id = $1::text;
`

const QCreditGrant = `--sql bf367fdb-376c-41ff-8fd1-4ae79be24efe
insert into credit_accounts (user_id, balance, reserved, lifetime_granted, notified_level, updated_at)
values ($1::text, $2::bigint, 0, $2::bigint, 0, now())
on conflict (user_id) do update set
    balance = credit_accounts.balance + excluded.balance,
    lifetime_granted = credit_accounts.lifetime_granted + excluded.lifetime_granted,
    notified_level = case
        when credit_accounts.balance + excluded.balance >= $3::bigint then 0
        else credit_accounts.notified_level
    end,
    updated_at = now()
returning user_id, balance, reserved, lifetime_granted, notified_level, updated_at;
`

const QCreditMarkNotified = `--sql 908da730-d4db-4a04-9517-cafc0b3043ba
update credit_accounts
set notified_level = $2::int
where user_id = $1::text
  and notified_level < $2::int;
`

const QCreditStaleReservations = `--sql 4ad349f3-7a48-44b1-b06c-57d225985610
select r.id::text, r.user_id, r.amount, r.kind, r.state, r.created_at
from credit_reservations r
where r.state = 'reserved'
  and r.created_at < $1::timestamptz
  and not exists (
      select 1 from jobs j
      where j.reservation_id = r.id
        and j.status in ('queued', 'active')
  )
  and not exists (
      select 1 from batch_images b
      where b.reservation_id = r.id
        and b.status = 'processing'
  )
order by r.created_at asc
limit $2::int;
`
