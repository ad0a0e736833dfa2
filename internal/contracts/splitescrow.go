// Package contracts holds ABI definitions for the deployed escrow contract.
package contracts

// SplitEscrowABI is the ABI of the SplitEscrow contract. Revert reasons in
// the contract match the strings classified in internal/escrow.
const SplitEscrowABI = `[
  {"type":"function","name":"createBill","stateMutability":"nonpayable","inputs":[{"name":"billId","type":"bytes32"},{"name":"participants","type":"address[]"},{"name":"amounts","type":"uint256[]"}],"outputs":[]},
  {"type":"function","name":"createBillFor","stateMutability":"nonpayable","inputs":[{"name":"billId","type":"bytes32"},{"name":"beneficiary","type":"address"},{"name":"participants","type":"address[]"},{"name":"amounts","type":"uint256[]"}],"outputs":[]},
  {"type":"function","name":"payShare","stateMutability":"payable","inputs":[{"name":"billId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"cancelAndRefund","stateMutability":"nonpayable","inputs":[{"name":"billId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"refundParticipant","stateMutability":"nonpayable","inputs":[{"name":"billId","type":"bytes32"},{"name":"participant","type":"address"}],"outputs":[]},
  {"type":"function","name":"partialSettle","stateMutability":"nonpayable","inputs":[{"name":"billId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"autoRefundIfExpired","stateMutability":"nonpayable","inputs":[{"name":"billId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"getBillInfo","stateMutability":"view","inputs":[{"name":"billId","type":"bytes32"}],"outputs":[{"name":"creator","type":"address"},{"name":"beneficiary","type":"address"},{"name":"totalAmount","type":"uint256"},{"name":"participantCount","type":"uint256"},{"name":"paidCount","type":"uint256"},{"name":"settled","type":"bool"},{"name":"cancelled","type":"bool"},{"name":"deadline","type":"uint256"}]},
  {"type":"function","name":"hasPaid","stateMutability":"view","inputs":[{"name":"billId","type":"bytes32"},{"name":"participant","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getShare","stateMutability":"view","inputs":[{"name":"billId","type":"bytes32"},{"name":"participant","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"canRefund","stateMutability":"view","inputs":[{"name":"billId","type":"bytes32"},{"name":"participant","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getPaidAmount","stateMutability":"view","inputs":[{"name":"billId","type":"bytes32"},{"name":"participant","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"BillCreated","inputs":[{"name":"billId","type":"bytes32","indexed":true},{"name":"creator","type":"address","indexed":true},{"name":"totalAmount","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"PaymentReceived","inputs":[{"name":"billId","type":"bytes32","indexed":true},{"name":"participant","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"BillSettled","inputs":[{"name":"billId","type":"bytes32","indexed":true}],"anonymous":false},
  {"type":"event","name":"BillCancelled","inputs":[{"name":"billId","type":"bytes32","indexed":true}],"anonymous":false},
  {"type":"event","name":"PartialSettlement","inputs":[{"name":"billId","type":"bytes32","indexed":true}],"anonymous":false}
]`
